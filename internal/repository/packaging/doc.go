// Package packaging writes rendered manifests into a packaging repository.
//
// Every file is written all-or-nothing: readers see either the previous
// content or the new content, never a partial file, and a failed write leaves
// no temporary files behind. A lock file keeps two runs from writing the same
// repository at once.
package packaging
