package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graphling/graphling/internal/checkpoint"
	"github.com/graphling/graphling/internal/config"
	"github.com/graphling/graphling/internal/observability"
	"github.com/graphling/graphling/pkg/graph"
)

// ResumeCommand holds the flags for the resume command.
type ResumeCommand struct {
	projectID     string
	rootPath      string
	analyzerType  string
	configPath    string
	checkpointDir string
	outputJSON    bool
}

// NewResumeCommand creates and configures the resume command.
func NewResumeCommand() *cobra.Command {
	rc := &ResumeCommand{}

	cobraCmd := &cobra.Command{
		Use:   "resume <job-id>",
		Short: "Resume a job from its last checkpoint",
		Long:  "Resume analysis of a previously started job from its saved checkpoint, continuing under the same job_id.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return rc.Run(args[0])
		},
	}

	cobraCmd.Flags().StringVar(&rc.projectID, "project-id", "", "project_id the checkpoint was recorded under (required)")
	cobraCmd.Flags().StringVar(&rc.rootPath, "path", "", "project root path to resume analysis over (required)")
	cobraCmd.Flags().StringVar(&rc.analyzerType, "analyzer", "default", "analyzer kind the checkpoint was recorded under")
	cobraCmd.Flags().StringVar(&rc.configPath, "config", "", "path to config file (default: search CWD and $HOME)")
	cobraCmd.Flags().StringVar(&rc.checkpointDir, "checkpoint-dir", "", "checkpoint base directory (default: ~/.graphling/checkpoints)")
	cobraCmd.Flags().BoolVar(&rc.outputJSON, "json", false, "print final statistics as JSON instead of a table")

	_ = cobraCmd.MarkFlagRequired("project-id")
	_ = cobraCmd.MarkFlagRequired("path")

	return cobraCmd
}

// Run executes the resume command for jobID.
func (rc *ResumeCommand) Run(jobID string) error {
	cfg, err := config.LoadConfig(rc.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	providers, err := observability.Init(observability.Config{Mode: observability.ModeCLI})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		_ = providers.Shutdown(context.Background())
	}()

	checkpointDir := rc.checkpointDir
	if checkpointDir == "" {
		checkpointDir = checkpoint.DefaultDir()
	}

	registry, err := buildRegistry(cfg, checkpointDir, providers.Logger)
	if err != nil {
		return fmt.Errorf("build job registry: %w", err)
	}

	if err := registry.ResumeAnalysis(jobID, rc.projectID, rc.rootPath, rc.analyzerType); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		registry.Shutdown(shutdownCtx)

		return fmt.Errorf("resume analysis: %w", err)
	}

	ac := &AnalyzeCommand{outputJSON: rc.outputJSON}

	state, stats, err := ac.waitForTerminal(registry, jobID)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	registry.Shutdown(shutdownCtx)

	if err != nil {
		return err
	}

	if rc.outputJSON {
		return ac.printJSON(jobID, state, stats)
	}

	ac.printTable(jobID, state, stats)

	if state == graph.JobFailed {
		return fmt.Errorf("analysis failed: %s", stats.Error)
	}

	return nil
}
