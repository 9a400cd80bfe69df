package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/pkgrender/internal/config"
	"github.com/oshokin/pkgrender/internal/service/engine"
)

// runFlags are shared by render and validate.
type runFlags struct {
	manifest       string
	templatesDir   string
	outputDir      string
	workers        int
	mirror         string
	inspectArchive bool
	summaryPath    string
}

var renderFlags runFlags

// renderCmd renders and writes every target of a release.
var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Verify the source archive and write every rendered manifest.",
	Long: `Loads the build manifest and templates, fetches the source archive and
verifies its checksum, then renders and writes every target in parallel.

Exit codes: 0 all targets written, 1 usage or configuration error,
2 release rejected before rendering, 3 source archive fetch failed,
4 some targets failed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return execute(cmd, &renderFlags, engine.Run)
	},
}

// execute runs an engine entry point and reports its summary.
func execute(cmd *cobra.Command, flags *runFlags,
	entry func(context.Context, *engine.Options) (*engine.Summary, error),
) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	flags.apply(cmd, cfg)

	summary, err := entry(ctx, &engine.Options{
		Config:       cfg,
		ManifestPath: flags.manifest,
	})
	if err != nil {
		return err
	}

	report, err := summary.Marshal()
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	_, _ = cmd.OutOrStdout().Write(report)

	if flags.summaryPath != "" {
		if err = summary.WriteFile(ctx, flags.summaryPath); err != nil {
			return err
		}
	}

	if code := summary.ExitCode(); code != engine.ExitOK {
		return &exitError{code: code, err: summary.Err()}
	}

	return nil
}

// apply overrides configuration with flags given on the command line.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("templates-dir") {
		cfg.TemplatesDir = f.templatesDir
	}

	if changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}

	if changed("workers") {
		cfg.Workers = f.workers
	}

	if changed("mirror") {
		cfg.ArtifactMirror = f.mirror
	}

	if changed("inspect-archive") {
		cfg.InspectArchive = f.inspectArchive
	}
}

func (f *runFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.manifest, "manifest", "m", "", "path to the build manifest (.yaml, .json, .jsonc)")
	flags.StringVar(&f.templatesDir, "templates-dir", config.DefaultTemplatesDir, "directory holding per-target templates")
	flags.StringVarP(&f.outputDir, "output-dir", "o", config.DefaultOutputDir, "packaging repository root")
	flags.IntVarP(&f.workers, "workers", "w", 0, "parallel renders, 0 means one per target")
	flags.StringVar(&f.mirror, "mirror", "", "serve http(s) artifacts from this directory by file name")
	flags.BoolVar(&f.inspectArchive, "inspect-archive", false, "check that a .tar.gz source archive is readable")
	flags.StringVar(&f.summaryPath, "summary", "", "also write the YAML run summary to this file")

	_ = cmd.MarkFlagRequired("manifest")
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	renderFlags.register(renderCmd)
	rootCmd.AddCommand(renderCmd)
}
