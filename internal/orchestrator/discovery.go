package orchestrator

import (
	"context"
	"fmt"

	"github.com/graphling/graphling/internal/queue"
	"github.com/graphling/graphling/internal/walker"
)

// discovery walks the project root, classifies every survivor, and
// enqueues it for Pass 1. Every discovered file is reprocessed through
// Pass 1 even on a resumed job: the Symbol Registry is in-memory and
// job-scoped, so a resumed run has no way to recover pass-2 symbol
// resolution for files it didn't reprocess this run. Idempotent upsert
// into the graph store is what makes redoing this work safe; the
// checkpoint's processed/failed file lists are loaded with it and written
// back with later checkpoints, but they are not used to skip re-enqueueing
// here, and every file's retry count starts again from zero.
func (j *Job) discovery(ctx context.Context) error {
	_, span := j.deps.tracer().Start(ctx, "graphling.stage.discovery")
	defer span.End()

	descs, err := walker.Walk(j.RootPath, walker.Options{MaxFileBytes: j.cfg.MaxFileBytes})
	if err != nil {
		return fmt.Errorf("walk %s: %w", j.RootPath, err)
	}

	var totalBytes int64
	for _, d := range descs {
		totalBytes += d.Size
	}

	j.mu.Lock()
	j.stats.TotalFiles = len(descs)
	j.stats.TotalBytes = totalBytes
	j.mu.Unlock()

	for _, d := range descs {
		j.descriptors[d.Path] = d

		if err := j.q.Push(&queue.Item{Path: d.Path, Size: d.Size, BasePriority: int(d.Priority)}); err != nil {
			return fmt.Errorf("enqueue %s: %w", d.Path, err)
		}
	}

	return nil
}

// preparePass2 opens a fresh queue seeded with every file that produced a
// File node in Pass 1 — files that permanently failed structural analysis
// have no symbols to resolve references for, so they're excluded.
func (j *Job) preparePass2() error {
	j.q = queue.New()

	j.mu.Lock()
	defer j.mu.Unlock()

	for path := range j.fileNodeIDs {
		desc := j.descriptors[path]

		if err := j.q.Push(&queue.Item{Path: path, Size: desc.Size, BasePriority: int(desc.Priority)}); err != nil {
			return fmt.Errorf("enqueue %s for pass 2: %w", path, err)
		}
	}

	return nil
}
