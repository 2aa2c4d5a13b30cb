package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/graphling/graphling/internal/checkpoint"
	"github.com/graphling/graphling/internal/config"
	"github.com/graphling/graphling/internal/jobregistry"
	"github.com/graphling/graphling/internal/observability"
	"github.com/graphling/graphling/internal/orchestrator"
	"github.com/graphling/graphling/pkg/graph"
)

// pollInterval is how often analyze polls job state while waiting for a
// one-shot run to finish.
const pollInterval = 100 * time.Millisecond

// AnalyzeCommand holds the flags for the analyze command.
type AnalyzeCommand struct {
	analyzerType  string
	configPath    string
	checkpointDir string
	outputJSON    bool
}

// NewAnalyzeCommand creates and configures the analyze command.
func NewAnalyzeCommand() *cobra.Command {
	ac := &AnalyzeCommand{}

	cobraCmd := &cobra.Command{
		Use:   "analyze <path>",
		Short: "Run a one-shot local analysis over a project directory",
		Long:  "Walk and analyze a project directory to completion without the websocket transport, printing final statistics.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return ac.Run(args[0])
		},
	}

	cobraCmd.Flags().StringVar(&ac.analyzerType, "analyzer", "default", "analyzer kind")
	cobraCmd.Flags().StringVar(&ac.configPath, "config", "", "path to config file (default: search CWD and $HOME)")
	cobraCmd.Flags().StringVar(&ac.checkpointDir, "checkpoint-dir", "", "checkpoint base directory (default: ~/.graphling/checkpoints)")
	cobraCmd.Flags().BoolVar(&ac.outputJSON, "json", false, "print final statistics as JSON instead of a table")

	return cobraCmd
}

// Run executes the analyze command for the project rooted at path.
func (ac *AnalyzeCommand) Run(path string) error {
	cfg, err := config.LoadConfig(ac.configPath)
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

	checkpointDir := ac.checkpointDir
	if checkpointDir == "" {
		checkpointDir = checkpoint.DefaultDir()
	}

	registry, err := buildRegistry(cfg, checkpointDir, providers.Logger)
	if err != nil {
		return fmt.Errorf("build job registry: %w", err)
	}

	projectID := "local:" + path

	jobID, _, _, err := registry.StartAnalysis(projectID, path, ac.analyzerType)
	if err != nil {
		return fmt.Errorf("start analysis: %w", err)
	}

	state, stats, err := ac.waitForTerminal(registry, jobID)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	registry.Shutdown(shutdownCtx)

	if err != nil {
		return err
	}

	if ac.outputJSON {
		return ac.printJSON(jobID, state, stats)
	}

	ac.printTable(jobID, state, stats)

	if state == graph.JobFailed {
		return fmt.Errorf("analysis failed: %s", stats.Error)
	}

	return nil
}

func (ac *AnalyzeCommand) waitForTerminal(registry *jobregistry.Registry, jobID string) (graph.JobState, orchestrator.Stats, error) {
	for {
		state, err := registry.State(jobID)
		if err != nil {
			return "", orchestrator.Stats{}, fmt.Errorf("poll job state: %w", err)
		}

		switch state {
		case graph.JobCompleted, graph.JobFailed, graph.JobCancelled:
			stats, err := registry.Stats(jobID)
			if err != nil {
				return "", orchestrator.Stats{}, fmt.Errorf("read final stats: %w", err)
			}

			return state, stats, nil
		default:
			time.Sleep(pollInterval)
		}
	}
}

// stateColor picks the color a terminal renders a job's final state in,
// matching the teacher's fatih/color usage for CLI status output.
func stateColor(state graph.JobState) *color.Color {
	switch state {
	case graph.JobCompleted:
		return color.New(color.FgGreen)
	case graph.JobFailed:
		return color.New(color.FgRed)
	case graph.JobCancelled:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}

func (ac *AnalyzeCommand) printTable(jobID string, state graph.JobState, stats orchestrator.Stats) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(os.Stdout)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateHeader = false

	tbl.AppendHeader(table.Row{"field", "value"})
	tbl.AppendRow(table.Row{"job_id", jobID})
	tbl.AppendRow(table.Row{"state", stateColor(state).Sprint(state)})
	tbl.AppendRow(table.Row{"total_files", stats.TotalFiles})
	tbl.AppendRow(table.Row{"total_bytes", humanize.Bytes(uint64(stats.TotalBytes))}) //nolint:gosec // file bytes are never negative.
	tbl.AppendRow(table.Row{"processed_files", stats.ProcessedFiles})
	tbl.AppendRow(table.Row{"total_symbols", stats.TotalSymbols})
	tbl.AppendRow(table.Row{"total_edges", stats.TotalEdges})

	if stats.Error != "" {
		tbl.AppendRow(table.Row{"error", color.New(color.FgRed).Sprint(stats.Error)})
	}

	tbl.Render()
}

func (ac *AnalyzeCommand) printJSON(jobID string, state graph.JobState, stats orchestrator.Stats) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(map[string]any{
		"job_id":          jobID,
		"state":           state,
		"total_files":     stats.TotalFiles,
		"total_bytes":     stats.TotalBytes,
		"processed_files": stats.ProcessedFiles,
		"total_symbols":   stats.TotalSymbols,
		"total_edges":     stats.TotalEdges,
		"error":           stats.Error,
	})
}
