package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/graphling/graphling/pkg/version"
)

// NewVersionCommand creates and configures the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "graphling %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
