package template

import (
	"fmt"
	"strings"

	"github.com/oshokin/pkgrender/internal/domain/placeholder"
)

// lex splits body into literal, escape and marker segments.
//
// A '{' starts a marker only when followed by a key and '}'. Sloppy forms
// like "{ build_tag }", keys cut off by a line end and vocabulary keys missing
// their closing brace are rejected rather than passed through.
func lex(body string) ([]Segment, error) {
	var (
		segments []Segment
		literal  strings.Builder
		start    = 1
		line     = 1
	)

	flush := func() {
		if literal.Len() == 0 {
			return
		}

		segments = append(segments, Segment{Kind: SegmentLiteral, Text: literal.String(), Line: start})
		literal.Reset()
	}

	appendLiteral := func(s string) {
		if literal.Len() == 0 {
			start = line
		}

		literal.WriteString(s)
		line += strings.Count(s, "\n")
	}

	for i := 0; i < len(body); {
		c := body[i]

		switch {
		case (c == '{' || c == '}') && i+1 < len(body) && body[i+1] == c:
			flush()
			segments = append(segments, Segment{Kind: SegmentEscape, Text: string(c), Line: line})
			i += 2
		case c == '{':
			segment, width, err := lexMarker(body[i:], line)
			if err != nil {
				return nil, err
			}

			if width == 0 {
				appendLiteral("{")
				i++

				continue
			}

			flush()
			segments = append(segments, segment)
			i += width
		default:
			next := strings.IndexAny(body[i+1:], "{}")
			if next < 0 {
				appendLiteral(body[i:])
				i = len(body)

				continue
			}

			appendLiteral(body[i : i+1+next])
			i += 1 + next
		}
	}

	flush()

	return segments, nil
}

// lexMarker inspects text starting at '{'. It returns the marker segment and
// its width, width 0 when the brace is plain text, or an error for a malformed marker.
func lexMarker(text string, line int) (Segment, int, error) {
	end := 1
	for end < len(text) && placeholder.IsIdentPart(text[end]) {
		end++
	}

	key := text[1:end]

	switch {
	case key != "" && end < len(text) && text[end] == '}':
		if !placeholder.IsIdentStart(key[0]) {
			return Segment{}, 0, nil
		}

		name, err := placeholder.Parse(key)
		if err != nil {
			return Segment{}, 0, fmt.Errorf("line %d: %w", line, err)
		}

		return Segment{Kind: SegmentMarker, Text: text[:end+1], Name: name, Line: line}, end + 1, nil
	case key != "" && placeholder.IsIdentStart(key[0]) && (end == len(text) || text[end] == '\n' || text[end] == '\r'):
		return Segment{}, 0, fmt.Errorf("line %d: %q: %w", line, text[:end], errUnterminatedMark)
	case key != "" && isVocabulary(key):
		// A known key followed by anything but '}' lost its closing brace.
		return Segment{}, 0, fmt.Errorf("line %d: %q: %w", line, text[:end], errUnterminatedMark)
	}

	// Whatever follows on this line must not look like a marker either.
	rest, _, _ := strings.Cut(text, "\n")
	if found := placeholder.FindMarkers(rest); len(found) > 0 && strings.HasPrefix(rest, found[0]) {
		return Segment{}, 0, fmt.Errorf("line %d: %q: %w", line, found[0], errMalformedMarker)
	}

	return Segment{}, 0, nil
}

func isVocabulary(key string) bool {
	_, err := placeholder.Parse(key)

	return err == nil
}
