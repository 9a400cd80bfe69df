// Package verifier is the release-level checksum gate.
//
// It fetches the source archive once, recomputes its digest with the
// algorithm the manifest claims and accepts the release only on an exact
// match. Nothing is rendered until the gate passes.
package verifier
