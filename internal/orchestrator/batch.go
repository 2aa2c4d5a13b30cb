package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/graphling/graphling/pkg/graph"
)

// batchAccumulator collects node/edge contributions from workers until one
// of the close conditions fires. It is only ever touched from the single
// assemble goroutine, which is what keeps sequence assignment serialized.
type batchAccumulator struct {
	nodes []graph.CodeNode
	edges []graph.Edge
}

func (a *batchAccumulator) add(nodes []graph.CodeNode, edges []graph.Edge) {
	a.nodes = append(a.nodes, nodes...)
	a.edges = append(a.edges, edges...)
}

func (a *batchAccumulator) empty() bool {
	return len(a.nodes) == 0 && len(a.edges) == 0
}

func (a *batchAccumulator) shouldClose(cfg Config) bool {
	return len(a.nodes) >= cfg.BatchNodes || len(a.edges) >= cfg.BatchEdges
}

func (a *batchAccumulator) reset() {
	a.nodes = nil
	a.edges = nil
}

// flush applies the accumulated batch to the store, checkpoints, then
// publishes — in that exact order. A crash between apply and checkpoint
// causes at most one replay on resume, absorbed by idempotent upsert; a
// crash before apply loses nothing, since nothing was committed.
func (j *Job) flush(ctx context.Context, pass graph.Pass, acc *batchAccumulator) error {
	if acc.empty() {
		return nil
	}

	seq := j.nextSequence()

	batch := graph.BatchUpdate{
		JobID:     j.ID,
		Sequence:  seq,
		Nodes:     acc.nodes,
		Edges:     acc.edges,
		Pass:      pass,
		CreatedAt: time.Now(),
	}

	if err := j.deps.Store.ApplyBatch(ctx, batch); err != nil {
		return fmt.Errorf("apply batch %d: %w", seq, err)
	}

	j.mu.Lock()
	j.cp.LastCommittedSequence = int64(seq) //nolint:gosec // sequence is a small monotonic counter.
	cpSnapshot := j.cp
	j.mu.Unlock()

	if j.deps.Checkpoint != nil {
		if err := j.deps.Checkpoint.Save(nil, cpSnapshot, j.ProjectID, j.AnalyzerKind); err != nil {
			return fmt.Errorf("save checkpoint at batch %d: %w", seq, err)
		}
	}

	j.deps.Broker.Publish(j.ID, batch)

	acc.reset()

	return nil
}
