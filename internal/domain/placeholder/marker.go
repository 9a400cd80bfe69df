package placeholder

import "regexp"

// markerPattern matches anything that looks like a marker, including the
// sloppy forms ("{ build_tag }", "{Build_Tag}") that are never valid.
var markerPattern = regexp.MustCompile(`\{\s*[A-Za-z_][A-Za-z0-9_]*\s*\}`)

// FindMarkers returns every marker-shaped substring of text.
func FindMarkers(text string) []string {
	return markerPattern.FindAllString(text, -1)
}

// IsIdentStart reports whether c may start a placeholder key.
func IsIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// IsIdentPart reports whether c may continue a placeholder key.
func IsIdentPart(c byte) bool {
	return IsIdentStart(c) || (c >= '0' && c <= '9')
}
