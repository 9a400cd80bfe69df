// Package engine runs a release through the render pipeline.
//
// A run is two phases. The release-level phase resolves placeholder values
// and passes the checksum gate; any failure here blocks every target. The
// fan-out phase renders and writes each target in its own bounded worker, and
// a failing target never affects its siblings. The outcome is a Summary that
// maps onto the process exit status.
package engine
