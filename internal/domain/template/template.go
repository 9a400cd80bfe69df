package template

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"slices"

	"github.com/oshokin/pkgrender/internal/domain/fault"
	"github.com/oshokin/pkgrender/internal/domain/placeholder"
)

// SegmentKind tells the renderer how to emit a segment.
type SegmentKind int

const (
	// SegmentLiteral is template text copied as is.
	SegmentLiteral SegmentKind = iota + 1
	// SegmentEscape is a single literal brace produced by "{{" or "}}".
	SegmentEscape
	// SegmentMarker is a substitution point.
	SegmentMarker
)

// Segment is one lexical piece of a template body.
type Segment struct {
	// Kind selects how the segment is emitted.
	Kind SegmentKind
	// Text is the literal text, the escaped brace, or the marker source.
	Text string
	// Name is the placeholder of a marker segment.
	Name placeholder.Name
	// Line is the 1-based line the segment starts on.
	Line int
}

// Template is a parsed, validated template for one target.
type Template struct {
	target     string
	outputPath string
	segments   []Segment
	declared   []placeholder.Name
}

// targetPattern restricts target names to something safe as a directory name.
var targetPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

var (
	errEmptyTarget      = errors.New("target name is empty")
	errBadTarget        = errors.New("target name must match [a-z0-9][a-z0-9._-]*")
	errEmptyBody        = errors.New("template body is empty")
	errEmptyOutput      = errors.New("output path is empty")
	errNonLocalOutput   = errors.New("output path must be relative and stay inside the output directory")
	errMalformedMarker  = errors.New("malformed marker")
	errUnterminatedMark = errors.New("unterminated marker")
)

// Field returns the error-report field name of a target's template.
func Field(target string) string {
	return "templates." + target
}

// Parse validates a template body for target and records its declared placeholders.
// outputPath is the slash-separated path relative to the packaging repository root.
func Parse(target, outputPath string, body []byte) (*Template, error) {
	if target == "" {
		return nil, fault.New(fault.KindMissingField, "templates", errEmptyTarget)
	}

	field := Field(target)

	if !targetPattern.MatchString(target) {
		return nil, fault.New(fault.KindMalformedField, field, fmt.Errorf("%q: %w", target, errBadTarget))
	}

	if outputPath == "" {
		return nil, fault.New(fault.KindMissingField, field+".output", errEmptyOutput)
	}

	cleaned := path.Clean(outputPath)
	if !isLocalSlashPath(cleaned) {
		return nil, fault.New(fault.KindMalformedField, field+".output",
			fmt.Errorf("%q: %w", outputPath, errNonLocalOutput))
	}

	if len(body) == 0 {
		return nil, fault.New(fault.KindMissingField, field+".body", errEmptyBody)
	}

	segments, err := lex(string(body))
	if err != nil {
		return nil, fault.New(fault.KindMalformedField, field, err)
	}

	return &Template{
		target:     target,
		outputPath: cleaned,
		segments:   segments,
		declared:   declaredNames(segments),
	}, nil
}

// Target returns the package-manager target name.
func (t *Template) Target() string {
	return t.target
}

// OutputPath returns the slash-separated output path relative to the repository root.
func (t *Template) OutputPath() string {
	return t.outputPath
}

// Segments returns the parsed body.
func (t *Template) Segments() []Segment {
	return slices.Clone(t.segments)
}

// Declared returns the placeholders the body references, in vocabulary order.
func (t *Template) Declared() []placeholder.Name {
	return slices.Clone(t.declared)
}

// Uses reports whether the body references name.
func (t *Template) Uses(name placeholder.Name) bool {
	_, found := slices.BinarySearch(t.declared, name)

	return found
}

func declaredNames(segments []Segment) []placeholder.Name {
	var names []placeholder.Name

	for _, segment := range segments {
		if segment.Kind == SegmentMarker {
			names = append(names, segment.Name)
		}
	}

	slices.Sort(names)

	return slices.Compact(names)
}

func isLocalSlashPath(p string) bool {
	if p == "." || path.IsAbs(p) || p == ".." {
		return false
	}

	return len(p) < 3 || p[:3] != "../"
}
