// Package template parses per-target template bodies into segments once, at
// load time. A template referencing a key outside the placeholder vocabulary,
// or containing a malformed marker, never makes it into a Set.
//
// Marker syntax is "{key}". "{{" and "}}" produce literal braces, which lets
// templates carry target-language interpolation such as Ruby's "#{{prefix}}".
package template
