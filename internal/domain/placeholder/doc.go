// Package placeholder defines the closed vocabulary of substitution points a
// template may use, the marker syntax that references them, and the resolved
// value table shared read-only by every render of a run.
package placeholder
