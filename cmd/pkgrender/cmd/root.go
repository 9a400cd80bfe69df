package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/pkgrender/internal/config"
	"github.com/oshokin/pkgrender/internal/logger"
	"github.com/oshokin/pkgrender/internal/service/engine"
	"github.com/oshokin/pkgrender/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// toolName is used when no configuration file exists.
	toolName string
	// logLevel overrides the configured log level.
	logLevel string
	// logFormat overrides the configured log format.
	logFormat string

	// rootCmd represents the base command when called without any subcommands.
	rootCmd = &cobra.Command{
		Use:   "pkgrender",
		Short: "Render package-manager manifests for a verified release.",
		Long: `Renders the Homebrew formula, Scoop manifest and every other package-manager
manifest of a release from per-target templates.

Templates reference release values with markers such as {build_tag} and
{source_package_tar_hash}; literal braces are written as {{ and }}.
The source archive is fetched and its checksum verified before any template
is rendered, so a tampered or mistyped release never reaches the packaging
repository.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// exitError carries a process exit code chosen from a run summary.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}

	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// Execute runs the pkgrender CLI and exits with the code matching the run outcome.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	err := rootCmd.Execute()
	if err == nil {
		return
	}

	_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(exitCode(err))
}

// exitCode maps a command error onto the process exit status.
func exitCode(err error) int {
	if err == nil {
		return engine.ExitOK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}

	return engine.ExitUsage
}

// loadConfig reads the configuration file, falling back to defaults for
// --tool when the default file is absent, and applies logging overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)

	switch {
	case err == nil:
		if cmd.Flags().Changed("tool") {
			cfg.ToolName = toolName
		}
	case errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config"):
		if toolName == "" {
			return nil, fmt.Errorf("%s not found and --tool is not set: %w", config.DefaultConfigFilename, err)
		}

		cfg = config.Default(toolName)
	default:
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat = logFormat
	}

	if err = config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogger(cfg)

	return cfg, nil
}

// setupLogger replaces the global logger according to validated settings.
func setupLogger(cfg *config.Config) {
	level, _ := logger.ParseLogLevel(cfg.LogLevel)
	format, _ := logger.ParseFormat(cfg.LogFormat)

	logger.SetLevel(level)
	logger.SetLogger(logger.NewWithWriter(os.Stderr, format, nil))
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&toolName, "tool", "t", "", "tool name, used when no configuration file exists")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&logFormat, "log-format", string(logger.FormatConsole), "log format: console, json")
}
