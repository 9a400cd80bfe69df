package template

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/oshokin/pkgrender/internal/domain/fault"
)

// templateSuffix is stripped from template file names before deriving the output extension.
const templateSuffix = ".tmpl"

var (
	errEmptySet        = errors.New("template set is empty")
	errDuplicateTarget = errors.New("target defined twice")
	errDuplicateOutput = errors.New("output path shared by two targets")
	errNoTargetDir     = errors.New("template must live in a <target>/ directory")
	errNoMatches       = errors.New("no templates match pattern")
)

// Spec describes where a target's template comes from and where its output goes.
type Spec struct {
	// Target is the package-manager target name.
	Target string
	// Path is the template file path inside the template filesystem.
	Path string
	// Output is the slash-separated output path relative to the repository root.
	Output string
}

// Set is a validated collection of templates keyed by target, ordered by target name.
type Set struct {
	templates []*Template
}

// NewSet checks that targets and output paths are unique.
func NewSet(templates ...*Template) (*Set, error) {
	if len(templates) == 0 {
		return nil, fault.New(fault.KindMissingField, "templates", errEmptySet)
	}

	sorted := slices.Clone(templates)
	slices.SortFunc(sorted, func(a, b *Template) int {
		return strings.Compare(a.target, b.target)
	})

	outputs := make(map[string]string, len(sorted))

	for i, tpl := range sorted {
		if i > 0 && sorted[i-1].target == tpl.target {
			return nil, fault.New(fault.KindMalformedField, Field(tpl.target), errDuplicateTarget)
		}

		if owner, taken := outputs[tpl.outputPath]; taken {
			return nil, fault.New(fault.KindMalformedField, Field(tpl.target)+".output",
				fmt.Errorf("%s (also %s): %w", tpl.outputPath, owner, errDuplicateOutput))
		}

		outputs[tpl.outputPath] = tpl.target
	}

	return &Set{templates: sorted}, nil
}

// Templates returns the templates ordered by target name.
func (s *Set) Templates() []*Template {
	return slices.Clone(s.templates)
}

// Targets returns the target names in order.
func (s *Set) Targets() []string {
	targets := make([]string, 0, len(s.templates))
	for _, tpl := range s.templates {
		targets = append(targets, tpl.target)
	}

	return targets
}

// Len returns the number of targets.
func (s *Set) Len() int {
	return len(s.templates)
}

// Load reads and parses every template described by specs.
// The first invalid template fails the whole load.
func Load(fsys fs.FS, specs []Spec) (*Set, error) {
	templates := make([]*Template, 0, len(specs))

	for _, spec := range specs {
		body, err := fs.ReadFile(fsys, spec.Path)
		if err != nil {
			return nil, fault.New(fault.KindMissingField, Field(spec.Target), fmt.Errorf("read template: %w", err))
		}

		tpl, err := Parse(spec.Target, spec.Output, body)
		if err != nil {
			return nil, err
		}

		templates = append(templates, tpl)
	}

	return NewSet(templates...)
}

// Discover finds templates matching a doublestar pattern laid out as
// <target>/<file>, e.g. "homebrew/rnp.rb". Each target's output defaults to
// DefaultOutputPath.
func Discover(fsys fs.FS, pattern, toolName string) ([]Spec, error) {
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fault.New(fault.KindMalformedField, "template_pattern", err)
	}

	slices.Sort(matches)

	specs := make([]Spec, 0, len(matches))

	for _, match := range matches {
		info, err := fs.Stat(fsys, match)
		if err != nil {
			return nil, fault.New(fault.KindMissingField, "templates", err)
		}

		if info.IsDir() {
			continue
		}

		target, _, found := strings.Cut(match, "/")
		if !found {
			return nil, fault.New(fault.KindMalformedField, "templates", fmt.Errorf("%s: %w", match, errNoTargetDir))
		}

		specs = append(specs, Spec{
			Target: target,
			Path:   match,
			Output: DefaultOutputPath(target, toolName, match),
		})
	}

	if len(specs) == 0 {
		return nil, fault.New(fault.KindMissingField, "templates", fmt.Errorf("%q: %w", pattern, errNoMatches))
	}

	return specs, nil
}

// DefaultOutputPath returns "<target>/<tool>.<ext>" where ext comes from the
// template file name with any ".tmpl" suffix removed.
func DefaultOutputPath(target, toolName, templatePath string) string {
	name := strings.TrimSuffix(path.Base(templatePath), templateSuffix)

	return path.Join(target, toolName+path.Ext(name))
}
