package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/pkgrender/internal/domain/fault"
	"github.com/oshokin/pkgrender/internal/repository/packaging"
)

// Process exit codes.
const (
	// ExitOK means every target succeeded.
	ExitOK = 0
	// ExitUsage means the run could not start (bad flags, config or lock).
	ExitUsage = 1
	// ExitHalted means a release-level failure blocked every target.
	ExitHalted = 2
	// ExitFetchFailed means the source archive could not be fetched; retrying may help.
	ExitFetchFailed = 3
	// ExitPartial means at least one target failed on its own.
	ExitPartial = 4
)

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	RunSucceeded RunStatus = "success"
	RunPartial   RunStatus = "partial"
	RunHalted    RunStatus = "halted"
)

// TargetStatus is the outcome of one target.
type TargetStatus string

const (
	TargetSucceeded TargetStatus = "success"
	TargetFailed    TargetStatus = "failed"
	// TargetBlocked means a release-level failure stopped the target before rendering.
	TargetBlocked TargetStatus = "blocked"
)

// TargetReport describes one target in the summary.
type TargetReport struct {
	Target       string           `yaml:"target"`
	Status       TargetStatus     `yaml:"status"`
	Path         string           `yaml:"path,omitempty"`
	Write        packaging.Status `yaml:"write,omitempty"`
	Placeholders []string         `yaml:"placeholders,omitempty"`
	ErrorKind    fault.Kind       `yaml:"error_kind,omitempty"`
	Error        string           `yaml:"error,omitempty"`

	err error
}

// Summary is the structured report of a run.
type Summary struct {
	Release   string         `yaml:"release,omitempty"`
	Status    RunStatus      `yaml:"status"`
	HaltKind  fault.Kind     `yaml:"halt_kind,omitempty"`
	HaltError string         `yaml:"halt_error,omitempty"`
	Targets   []TargetReport `yaml:"targets"`

	haltErr error
}

var errTargetsFailed = errors.New("targets failed")

// halted builds the summary of a run stopped by a release-level failure.
func halted(release string, targets []string, err error) *Summary {
	summary := &Summary{
		Release:   release,
		Status:    RunHalted,
		HaltKind:  fault.KindOf(err),
		HaltError: err.Error(),
		Targets:   make([]TargetReport, 0, len(targets)),
		haltErr:   err,
	}

	for _, target := range targets {
		summary.Targets = append(summary.Targets, TargetReport{
			Target:    target,
			Status:    TargetBlocked,
			ErrorKind: summary.HaltKind,
		})
	}

	return summary
}

// completed builds the summary of a run that reached the fan-out phase.
func completed(release string, reports []TargetReport) *Summary {
	summary := &Summary{
		Release: release,
		Status:  RunSucceeded,
		Targets: reports,
	}

	for _, report := range reports {
		if report.Status != TargetSucceeded {
			summary.Status = RunPartial

			break
		}
	}

	return summary
}

// Failed returns the reports of targets that did not succeed.
func (s *Summary) Failed() []TargetReport {
	var failed []TargetReport

	for _, report := range s.Targets {
		if report.Status != TargetSucceeded {
			failed = append(failed, report)
		}
	}

	return failed
}

// ExitCode maps the summary onto a process exit status.
func (s *Summary) ExitCode() int {
	switch s.Status {
	case RunSucceeded:
		return ExitOK
	case RunHalted:
		if s.HaltKind == fault.KindFetchFailed {
			return ExitFetchFailed
		}

		return ExitHalted
	default:
		return ExitPartial
	}
}

// Err returns nil for a successful run, the release-level error for a halted
// run, or an error listing every failed target.
func (s *Summary) Err() error {
	switch s.Status {
	case RunSucceeded:
		return nil
	case RunHalted:
		return s.haltErr
	}

	failed := s.Failed()
	causes := make([]error, 0, len(failed))
	names := make([]string, 0, len(failed))

	for _, report := range failed {
		names = append(names, fmt.Sprintf("%s (%s)", report.Target, report.ErrorKind))

		if report.err != nil {
			causes = append(causes, report.err)
		}
	}

	return fmt.Errorf("%s: %w", strings.Join(names, ", "),
		errors.Join(append([]error{errTargetsFailed}, causes...)...))
}

// Marshal encodes the summary as YAML.
func (s *Summary) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// WriteFile stores the YAML summary at path atomically.
func (s *Summary) WriteFile(ctx context.Context, path string) error {
	data, err := s.Marshal()
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	writer := packaging.NewWriter(filepath.Dir(path))
	if _, err = writer.Write(ctx, filepath.ToSlash(filepath.Base(path)), data); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	return nil
}
