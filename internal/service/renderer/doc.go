// Package renderer substitutes resolved values into a parsed template.
//
// Substitution is a single pass: values are written verbatim and never
// scanned again, so a value that happens to contain "{build_tag}" stays as is.
// The renderer performs no I/O.
package renderer
