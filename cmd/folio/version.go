package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Long: `Print build information in the --output format.

The release tag and commit are set with -ldflags at build time. Builds
without them fall back to the module's VCS stamp.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return api.Output(version.Get())
	},
}
