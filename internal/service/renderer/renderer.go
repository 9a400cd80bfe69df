package renderer

import (
	"bytes"
	"errors"
	"slices"
	"strings"

	"github.com/oshokin/pkgrender/internal/domain/fault"
	"github.com/oshokin/pkgrender/internal/domain/placeholder"
	"github.com/oshokin/pkgrender/internal/domain/template"
)

// opaque stands in for substituted values and escapes in the residual scan,
// so only text that came from the template itself is searched for markers.
const opaque = "\x00"

var (
	errNoTemplate = errors.New("template is not set")
	errNoTable    = errors.New("resolved value table is not set")
	errResidual   = errors.New("markers left after substitution")
)

// Result is the outcome of a successful render.
type Result struct {
	// Target is the template's target name.
	Target string
	// OutputPath is the slash-separated path the result belongs at.
	OutputPath string
	// Content is the rendered manifest.
	Content []byte
	// Values holds the resolved values the template actually used.
	Values map[placeholder.Name]string
}

// Render produces the manifest bytes for tpl from table.
// Identical inputs always produce identical bytes.
func Render(tpl *template.Template, table *placeholder.Table) (*Result, error) {
	if tpl == nil {
		return nil, fault.New(fault.KindMissingField, "template", errNoTemplate)
	}

	if table == nil {
		return nil, fault.New(fault.KindMissingField, "values", errNoTable)
	}

	var (
		output bytes.Buffer
		shadow strings.Builder
		used   = make(map[placeholder.Name]string, len(tpl.Declared()))
	)

	for _, segment := range tpl.Segments() {
		switch segment.Kind {
		case template.SegmentLiteral:
			output.WriteString(segment.Text)
			shadow.WriteString(segment.Text)
		case template.SegmentEscape:
			output.WriteString(segment.Text)
			shadow.WriteString(opaque)
		case template.SegmentMarker:
			value, ok := table.Lookup(segment.Name)
			if !ok {
				// Left in place for the residual scan to report.
				output.WriteString(segment.Text)
				shadow.WriteString(segment.Text)

				continue
			}

			output.WriteString(value)
			shadow.WriteString(opaque)

			used[segment.Name] = value
		}
	}

	if residual := placeholder.FindMarkers(shadow.String()); len(residual) > 0 {
		return nil, &fault.Error{
			Kind:   fault.KindUnresolvedPlaceholder,
			Target: tpl.Target(),
			Field:  strings.Join(uniqueSorted(residual), ","),
			Err:    errResidual,
		}
	}

	return &Result{
		Target:     tpl.Target(),
		OutputPath: tpl.OutputPath(),
		Content:    output.Bytes(),
		Values:     used,
	}, nil
}

func uniqueSorted(values []string) []string {
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	return slices.Compact(sorted)
}
