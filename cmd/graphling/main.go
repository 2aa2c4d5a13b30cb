// Command graphling ingests a source tree through language servers and
// streams the resulting code graph over a websocket protocol, or runs the
// same analysis as a one-shot local command.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/graphling/graphling/cmd/graphling/commands"
	"github.com/graphling/graphling/pkg/version"
)

var (
	verbose bool
	quiet   bool
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "graphling",
		Short: "Graphling code graph analysis",
		Long: `Graphling walks a project through language servers and builds a code graph.

Commands:
  serve     Run the websocket analysis server
  analyze   Run a one-shot local analysis over a project directory
  resume    Resume a job from its last checkpoint
  version   Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output; ignored by every command")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output; ignored by every command")

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewAnalyzeCommand())
	rootCmd.AddCommand(commands.NewResumeCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
