// Package resolver turns a Build Manifest into the resolved value table.
//
// Resolution is pure and runs once per release, before any target exists, so
// every target of a run sees exactly the same values.
package resolver
