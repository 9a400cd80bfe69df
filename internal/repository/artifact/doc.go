// Package artifact retrieves release artifacts by URL.
//
// HTTPFetcher downloads over HTTP(S), FileFetcher reads file:// URLs and
// MirrorFetcher serves artifacts from a local directory by base name, for CI
// runs where the archive exists locally before it is uploaded. Router picks
// one per URL scheme. None of them retry; callers decide whether a failed
// fetch is worth another attempt.
package artifact
