package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/pkgrender/internal/domain/fault"
	"github.com/oshokin/pkgrender/internal/domain/placeholder"
	"github.com/oshokin/pkgrender/internal/domain/release"
	"github.com/oshokin/pkgrender/internal/domain/template"
	"github.com/oshokin/pkgrender/internal/logger"
	"github.com/oshokin/pkgrender/internal/repository/packaging"
	"github.com/oshokin/pkgrender/internal/service/renderer"
	"github.com/oshokin/pkgrender/internal/service/resolver"
)

// Gate is the release-level integrity check run before any target is rendered.
type Gate interface {
	Verify(ctx context.Context, manifest *release.Manifest) error
}

// Emitter stores one rendered manifest all-or-nothing.
type Emitter interface {
	Write(ctx context.Context, relPath string, content []byte) (packaging.Status, error)
}

var (
	errNoGate    = errors.New("checksum gate is not set")
	errNoEmitter = errors.New("emitter is not set")
	errNoTargets = errors.New("template set is not set")
)

// Engine renders a template set for one release.
type Engine struct {
	gate    Gate
	emitter Emitter
	workers int
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds the number of targets processed in parallel.
// Zero or less means one worker per target.
func WithWorkers(workers int) Option {
	return func(e *Engine) {
		e.workers = workers
	}
}

// New creates an Engine.
func New(gate Gate, emitter Emitter, opts ...Option) *Engine {
	e := &Engine{
		gate:    gate,
		emitter: emitter,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Render runs the release through resolve, gate and fan-out.
// Release-level failures yield a halted summary in which every target is
// blocked and nothing has been written.
func (e *Engine) Render(ctx context.Context, manifest *release.Manifest, set *template.Set) *Summary {
	ctx = logger.WithName(ctx, "engine")

	var (
		tag     string
		targets []string
	)

	if manifest != nil {
		tag = manifest.VersionTag()
	}

	if set != nil {
		targets = set.Targets()
	}

	table, err := e.prepare(ctx, manifest, set)
	if err != nil {
		logger.ErrorKV(ctx, "Release halted", "release", tag, "kind", fault.KindOf(err).String(), "error", err)

		return halted(tag, targets, err)
	}

	reports := e.fanOut(ctx, set.Templates(), table)

	summary := completed(tag, reports)
	logger.InfoKV(ctx, "Release rendered", "release", tag, "status", string(summary.Status),
		"targets", len(reports), "failed", len(summary.Failed()))

	return summary
}

// prepare is the release-level phase: it builds the shared value table and
// passes the checksum gate.
func (e *Engine) prepare(ctx context.Context, manifest *release.Manifest, set *template.Set) (*placeholder.Table, error) {
	if set == nil {
		return nil, fault.New(fault.KindMissingField, "templates", errNoTargets)
	}

	if e.gate == nil {
		return nil, fault.New(fault.KindFetchFailed, release.FieldSourceArchiveURL, errNoGate)
	}

	table, err := resolver.Resolve(manifest)
	if err != nil {
		return nil, err
	}

	logger.DebugKV(ctx, "Placeholder values resolved", "entries", table.Len())

	started := time.Now()

	if err = e.gate.Verify(ctx, manifest); err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Checksum gate passed", "elapsed", time.Since(started))

	return table, nil
}

// fanOut renders and writes every template in bounded parallel workers.
// Each worker owns its report slot, so no locking is needed.
func (e *Engine) fanOut(ctx context.Context, templates []*template.Template, table *placeholder.Table) []TargetReport {
	reports := make([]TargetReport, len(templates))

	workers := e.workers
	if workers <= 0 || workers > len(templates) {
		workers = len(templates)
	}

	var group errgroup.Group

	group.SetLimit(max(workers, 1))

	for i, tpl := range templates {
		group.Go(func() error {
			reports[i] = e.process(ctx, tpl, table)

			// Target failures are reported, never propagated to siblings.
			return nil
		})
	}

	// Workers never return errors.
	_ = group.Wait()

	return reports
}

// process renders and emits one target.
func (e *Engine) process(ctx context.Context, tpl *template.Template, table *placeholder.Table) TargetReport {
	ctx = logger.WithKV(ctx, "target", tpl.Target())

	report := TargetReport{
		Target: tpl.Target(),
		Path:   tpl.OutputPath(),
	}

	if err := ctx.Err(); err != nil {
		return failed(ctx, report, fault.ForTarget(tpl.Target(), err))
	}

	result, err := renderer.Render(tpl, table)
	if err != nil {
		return failed(ctx, report, fault.ForTarget(tpl.Target(), err))
	}

	report.Placeholders = usedNames(result.Values)

	if e.emitter == nil {
		return failed(ctx, report, &fault.Error{Kind: fault.KindWriteFailed, Target: tpl.Target(), Err: errNoEmitter})
	}

	status, err := e.emitter.Write(ctx, result.OutputPath, result.Content)
	if err != nil {
		return failed(ctx, report, &fault.Error{
			Kind:   fault.KindWriteFailed,
			Target: tpl.Target(),
			Field:  result.OutputPath,
			Err:    err,
		})
	}

	report.Status = TargetSucceeded
	report.Write = status

	logger.InfoKV(ctx, "Manifest written", "path", result.OutputPath, "write", string(status))

	return report
}

func failed(ctx context.Context, report TargetReport, err *fault.Error) TargetReport {
	report.Status = TargetFailed
	report.ErrorKind = err.Kind
	report.Error = err.Error()
	report.err = err

	logger.ErrorKV(ctx, "Target failed", "kind", err.Kind.String(), "error", err)

	return report
}

func usedNames(values map[placeholder.Name]string) []string {
	names := make([]string, 0, len(values))

	for _, name := range placeholder.All() {
		if _, ok := values[name]; ok {
			names = append(names, name.String())
		}
	}

	return names
}
