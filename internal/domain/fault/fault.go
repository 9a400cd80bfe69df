package fault

import (
	"errors"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	// kindNone is the zero value: no failure.
	kindNone Kind = iota
	// KindUnknown marks errors that did not originate from the taxonomy.
	KindUnknown
	// KindMissingField means a required manifest or template field is absent or empty.
	KindMissingField
	// KindMalformedField means a field does not match its expected shape.
	KindMalformedField
	// KindFetchFailed means the source artifact could not be retrieved.
	KindFetchFailed
	// KindChecksumMismatch means the claimed digest differs from the computed one.
	KindChecksumMismatch
	// KindUnresolvedPlaceholder means a rendered target still contains markers.
	KindUnresolvedPlaceholder
	// KindWriteFailed means the rendered target could not be written.
	KindWriteFailed
)

// String returns the stable name used in run summaries, empty for the zero Kind.
func (k Kind) String() string {
	switch k {
	case KindMissingField:
		return "MissingField"
	case KindMalformedField:
		return "MalformedField"
	case KindFetchFailed:
		return "FetchFailed"
	case KindChecksumMismatch:
		return "ChecksumMismatch"
	case KindUnresolvedPlaceholder:
		return "UnresolvedPlaceholder"
	case KindWriteFailed:
		return "WriteFailed"
	case kindNone:
		return ""
	default:
		return "Unknown"
	}
}

// MarshalText lets summaries encode kinds by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsReleaseLevel reports whether a failure of this kind stops the run
// before any target is rendered.
func (k Kind) IsReleaseLevel() bool {
	switch k {
	case KindMissingField, KindMalformedField, KindFetchFailed, KindChecksumMismatch:
		return true
	default:
		return false
	}
}

// Error is a classified failure with enough context to diagnose it without re-running.
type Error struct {
	// Kind is the failure class.
	Kind Kind
	// Target is the package-manager target, empty for release-level failures.
	Target string
	// Field names the manifest field, template or marker involved.
	Field string
	// Expected is the claimed value (e.g. the manifest digest).
	Expected string
	// Actual is the observed value (e.g. the computed digest).
	Actual string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var builder strings.Builder

	kind := e.Kind
	if kind == kindNone {
		kind = KindUnknown
	}

	builder.WriteString(kind.String())

	if e.Target != "" {
		builder.WriteString(" [target ")
		builder.WriteString(e.Target)
		builder.WriteString("]")
	}

	if e.Field != "" {
		builder.WriteString(" ")
		builder.WriteString(e.Field)
	}

	if e.Expected != "" || e.Actual != "" {
		builder.WriteString(": expected ")
		builder.WriteString(e.Expected)
		builder.WriteString(", got ")
		builder.WriteString(e.Actual)
	}

	if e.Err != nil {
		builder.WriteString(": ")
		builder.WriteString(e.Err.Error())
	}

	return builder.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error for a field.
func New(kind Kind, field string, cause error) *Error {
	return &Error{
		Kind:  kind,
		Field: field,
		Err:   cause,
	}
}

// ForTarget returns a copy of err attributed to the target.
func ForTarget(target string, err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		cloned := *classified
		cloned.Target = target

		return &cloned
	}

	return &Error{
		Kind:   KindUnknown,
		Target: target,
		Err:    err,
	}
}

// KindOf extracts the kind of a classified error, KindUnknown otherwise.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	return KindUnknown
}

// IsRetryable reports whether an outer harness may retry the run.
// Only fetch failures are transient; a checksum mismatch needs a new release.
func IsRetryable(err error) bool {
	return KindOf(err) == KindFetchFailed
}
