package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/pkgrender/internal/config"
)

var (
	// force allows overwriting an existing configuration file.
	force bool

	errConfigExists = errors.New("configuration file already exists, use --force to overwrite")
	errToolRequired = errors.New("--tool must be set")
)

// initCmd writes a default configuration file.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default settings.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if toolName == "" {
			return errToolRequired
		}

		if _, err := os.Stat(configPath); err == nil && !force {
			return fmt.Errorf("%s: %w", configPath, errConfigExists)
		}

		cfg := config.Default(toolName)

		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}

		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}

		if err := config.Save(configPath, cfg); err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)

		return nil
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing configuration file")
	rootCmd.AddCommand(initCmd)
}
