// Package fault defines the error taxonomy shared by every stage of a render run.
//
// A Kind tells callers whether a failure halts the whole release (invalid
// manifest, checksum mismatch), may be retried by an outer harness (fetch), or
// only affects a single target (unresolved placeholder, write failure).
package fault
