package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/graphling/graphling/internal/checkpoint"
	"github.com/graphling/graphling/internal/queue"
	"github.com/graphling/graphling/pkg/graph"
)

// fileResult is what a per-file processor hands back to the assembler: the
// nodes/edges it contributed, or an error if the file could not be
// analyzed this attempt.
type fileResult struct {
	item  *queue.Item
	nodes []graph.CodeNode
	edges []graph.Edge
	err   error
}

// fileProcessor analyzes one queued file for a single pass.
type fileProcessor func(ctx context.Context, item *queue.Item) ([]graph.CodeNode, []graph.Edge, error)

// runPass drives one analysis pass: Workers pull files from the queue
// concurrently and hand contributions to a single in-line assembler loop —
// the only place batch sequence numbers are assigned, which is what keeps
// sequence strictly increasing without cross-worker coordination.
func (j *Job) runPass(ctx context.Context, pass graph.Pass, process fileProcessor) error {
	ctx, span := j.deps.tracer().Start(ctx, "graphling.stage."+string(pass), trace.WithAttributes(
		attribute.String("graphling.job_id", j.ID),
	))
	defer span.End()

	total := j.q.Len()

	results := make(chan fileResult, j.cfg.Workers)

	var wg sync.WaitGroup

	for range j.cfg.Workers {
		wg.Add(1)

		go j.passWorker(ctx, &wg, process, results)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return j.assemble(ctx, pass, total, results)
}

func (j *Job) passWorker(ctx context.Context, wg *sync.WaitGroup, process fileProcessor, results chan<- fileResult) {
	defer wg.Done()

	for {
		deadline := time.Now().Add(j.cfg.LSPRequestTimeout)

		item, err := j.q.PopBlockingWithDeadline(ctx, deadline)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				return
			}

			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}

			return
		}

		nodes, edges, procErr := process(ctx, item)

		select {
		case results <- fileResult{item: item, nodes: nodes, edges: edges, err: procErr}:
		case <-ctx.Done():
			return
		}
	}
}

// assemble receives worker results until every one of the pass's files has
// reached a terminal outcome (success, or exhausted retry budget), closing
// batches on the node/edge/time thresholds and on the final drain. It then
// closes the queue so idle workers exit, and drains any stragglers.
func (j *Job) assemble(ctx context.Context, pass graph.Pass, total int, results <-chan fileResult) error {
	acc := &batchAccumulator{}

	ticker := time.NewTicker(j.cfg.BatchInterval)
	defer ticker.Stop()

	pending := total

	for pending > 0 {
		select {
		case res, ok := <-results:
			if !ok {
				pending = 0

				continue
			}

			if !j.handleResult(pass, res, acc) {
				pending--
			}
		case <-ticker.C:
			if !acc.empty() {
				if err := j.flush(ctx, pass, acc); err != nil {
					return err
				}
			}

			continue
		case <-ctx.Done():
			return ctx.Err()
		}

		if acc.shouldClose(j.cfg) {
			if err := j.flush(ctx, pass, acc); err != nil {
				return err
			}
		}
	}

	j.q.Close()

	for res := range results {
		j.handleResult(pass, res, acc)

		if acc.shouldClose(j.cfg) {
			if err := j.flush(ctx, pass, acc); err != nil {
				return err
			}
		}
	}

	return j.flush(ctx, pass, acc)
}

// handleResult folds one file's outcome into the job's running state:
// success contributes nodes/edges and marks the file processed; failure
// records it under failed_files and either re-enqueues with an adjusted
// priority (requeued=true) or gives up once MAX_RETRIES is exhausted.
func (j *Job) handleResult(pass graph.Pass, res fileResult, acc *batchAccumulator) (requeued bool) {
	if res.err == nil {
		acc.add(res.nodes, res.edges)

		j.mu.Lock()
		j.stats.TotalSymbols += len(res.nodes)
		j.stats.TotalEdges += len(res.edges)

		if pass == graph.PassStructure {
			j.stats.ProcessedFiles++
			j.cp.ProcessedFiles = append(j.cp.ProcessedFiles, res.item.Path)
			delete(j.cp.FailedFiles, res.item.Path)
		}

		j.mu.Unlock()

		return false
	}

	res.item.RetryCount++

	j.mu.Lock()
	j.cp.FailedFiles[res.item.Path] = checkpoint.FailedFileEntry{
		RetryCount: res.item.RetryCount,
		LastError:  res.err.Error(),
	}
	withinBudget := res.item.RetryCount < j.cfg.MaxRetries
	j.mu.Unlock()

	if withinBudget {
		if pushErr := j.q.Push(res.item); pushErr == nil {
			return true
		}
	}

	j.deps.logger().Warn("file exhausted retry budget",
		"job_id", j.ID, "path", res.item.Path, "pass", pass, "error", res.err)

	return false
}
