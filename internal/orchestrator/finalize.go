package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/graphling/graphling/internal/checkpoint"
	"github.com/graphling/graphling/internal/observability"
	"github.com/graphling/graphling/pkg/graph"
)

// finalize emits the terminal batch, persists the done-marker checkpoint,
// and records run metrics. It does not touch the LSP pool: the pool is
// process-wide and shared across jobs, so only the Job Registry shuts it
// down, at process shutdown. The Symbol Registry needs no explicit clear
// call either — it is job-scoped and discarded with the Job itself once
// Run returns.
func (j *Job) finalize(ctx context.Context) error {
	ctx, span := j.deps.tracer().Start(ctx, "graphling.stage.finalize")
	defer span.End()

	j.mu.Lock()
	j.cp.Pass = checkpoint.PassDone
	cpSnapshot := j.cp
	stats := j.stats
	j.mu.Unlock()

	if j.deps.Checkpoint != nil {
		if err := j.deps.Checkpoint.Save(nil, cpSnapshot, j.ProjectID, j.AnalyzerKind); err != nil {
			return fmt.Errorf("save final checkpoint: %w", err)
		}
	}

	j.deps.Broker.Publish(j.ID, graph.BatchUpdate{
		JobID:     j.ID,
		Sequence:  j.nextSequence(),
		Pass:      graph.PassDone,
		Final:     true,
		CreatedAt: time.Now(),
	})

	j.deps.Metrics.RecordRun(ctx, observability.AnalysisStats{
		FilesProcessed: int64(stats.ProcessedFiles),
		Passes:         2,
	})

	return nil
}
