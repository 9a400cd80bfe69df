package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/pkgrender/internal/service/engine"
)

var validateFlags runFlags

// validateCmd checks a release without fetching or writing anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the manifest and templates and show which files would change.",
	Long: `Loads the build manifest and templates and renders every target in memory.
The source archive is not fetched and nothing is written; each target reports
whether its file would be created, updated or left unchanged.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return execute(cmd, &validateFlags, engine.Check)
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	validateFlags.register(validateCmd)
	rootCmd.AddCommand(validateCmd)
}
