package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/oshokin/pkgrender/internal/config"
	"github.com/oshokin/pkgrender/internal/domain/release"
	"github.com/oshokin/pkgrender/internal/domain/template"
	"github.com/oshokin/pkgrender/internal/logger"
	"github.com/oshokin/pkgrender/internal/repository/artifact"
	"github.com/oshokin/pkgrender/internal/repository/packaging"
	"github.com/oshokin/pkgrender/internal/service/verifier"
)

// Options contains inputs for the render entry points.
type Options struct {
	// Config holds run settings; it is validated before use.
	Config *config.Config
	// ManifestPath is the Build Manifest file (.yaml, .yml, .json, .jsonc).
	ManifestPath string
	// Fetcher overrides the artifact fetcher built from Config.
	Fetcher artifact.Fetcher
}

var (
	errConfigRequired   = errors.New("configuration is not set")
	errManifestRequired = errors.New("build manifest path must be provided")
)

// Run loads the release inputs, locks the packaging repository and renders every target.
// The returned error is set only when the run could not start at all; every
// other outcome, including release-level halts, is described by the Summary.
func Run(ctx context.Context, opts *Options) (*Summary, error) {
	ctx = logger.WithName(ctx, "pkgrender")

	cfg, err := prepareOptions(opts)
	if err != nil {
		return nil, err
	}

	manifest, set, summary := loadInputs(ctx, cfg, opts.ManifestPath)
	if summary != nil {
		return summary, nil
	}

	lock, err := packaging.Acquire(ctx, cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("lock packaging repository: %w", err)
	}

	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			logger.WarnKV(ctx, "Unable to release repository lock", "error", releaseErr)
		}
	}()

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = artifact.New(
			artifact.WithTimeout(cfg.FetchTimeout),
			artifact.WithMaxSize(cfg.MaxArtifactSize),
			artifact.WithMirror(cfg.ArtifactMirror),
		)
	}

	e := New(
		verifier.New(fetcher, verifier.WithArchiveInspection(cfg.InspectArchive)),
		packaging.NewWriter(cfg.OutputDir),
		WithWorkers(cfg.Workers),
	)

	return e.Render(ctx, manifest, set), nil
}

// Check validates the release inputs and renders every target in memory,
// reporting which files would be created or updated. It neither fetches the
// source archive nor writes to the repository.
func Check(ctx context.Context, opts *Options) (*Summary, error) {
	ctx = logger.WithName(ctx, "pkgrender-check")

	cfg, err := prepareOptions(opts)
	if err != nil {
		return nil, err
	}

	manifest, set, summary := loadInputs(ctx, cfg, opts.ManifestPath)
	if summary != nil {
		return summary, nil
	}

	e := New(skipGate{}, planner{writer: packaging.NewWriter(cfg.OutputDir)}, WithWorkers(cfg.Workers))

	return e.Render(ctx, manifest, set), nil
}

// LoadTemplates builds the template set described by cfg: explicit targets
// when configured, otherwise discovery under TemplatesDir.
func LoadTemplates(cfg *config.Config) (*template.Set, error) {
	fsys := os.DirFS(cfg.TemplatesDir)

	if len(cfg.Targets) == 0 {
		specs, err := template.Discover(fsys, cfg.TemplatePattern, cfg.ToolName)
		if err != nil {
			return nil, err
		}

		return template.Load(fsys, specs)
	}

	specs := make([]template.Spec, 0, len(cfg.Targets))

	for _, name := range slices.Sorted(maps.Keys(cfg.Targets)) {
		target := cfg.Targets[name]

		output := target.Output
		if output == "" {
			output = template.DefaultOutputPath(name, cfg.ToolName, target.Template)
		}

		specs = append(specs, template.Spec{
			Target: name,
			Path:   target.Template,
			Output: output,
		})
	}

	return template.Load(fsys, specs)
}

func prepareOptions(opts *Options) (*config.Config, error) {
	if opts == nil || opts.Config == nil {
		return nil, errConfigRequired
	}

	if opts.ManifestPath == "" {
		return nil, errManifestRequired
	}

	if err := config.Validate(opts.Config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return opts.Config, nil
}

// loadInputs loads the manifest before the templates, so a bad manifest is
// reported first. On failure it returns a halted summary.
func loadInputs(ctx context.Context, cfg *config.Config, manifestPath string) (*release.Manifest, *template.Set, *Summary) {
	manifest, manifestErr := release.Load(manifestPath)
	set, setErr := LoadTemplates(cfg)

	var targets []string
	if setErr == nil {
		targets = set.Targets()
	}

	switch {
	case manifestErr != nil:
		logger.ErrorKV(ctx, "Build manifest rejected", "path", manifestPath, "error", manifestErr)

		return nil, nil, halted("", targets, manifestErr)
	case setErr != nil:
		logger.ErrorKV(ctx, "Template set rejected", "dir", cfg.TemplatesDir, "error", setErr)

		return nil, nil, halted(manifest.VersionTag(), nil, setErr)
	}

	logger.InfoKV(ctx, "Release inputs loaded",
		"release", manifest.VersionTag(), "targets", set.Len(), "templates_dir", cfg.TemplatesDir)

	return manifest, set, nil
}

// skipGate lets Check render without fetching the source archive.
type skipGate struct{}

func (skipGate) Verify(context.Context, *release.Manifest) error {
	return nil
}

// planner reports would-be write statuses instead of writing.
type planner struct {
	writer *packaging.Writer
}

func (p planner) Write(ctx context.Context, relPath string, content []byte) (packaging.Status, error) {
	return p.writer.Plan(ctx, relPath, content)
}
