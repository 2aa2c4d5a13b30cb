// Package jobregistry owns the job_id -> JobState map and is the single
// entrypoint for starting, subscribing to, and cancelling analysis jobs. It
// is also where the process-wide LSP pool and MAX_ACTIVE_JOBS admission
// control live, since both are properties of the whole process rather than
// any one job.
package jobregistry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/graphling/graphling/internal/broker"
	"github.com/graphling/graphling/internal/checkpoint"
	"github.com/graphling/graphling/internal/graphstore"
	"github.com/graphling/graphling/internal/observability"
	"github.com/graphling/graphling/internal/orchestrator"
	"github.com/graphling/graphling/pkg/graph"
)

// ErrTooManyActiveJobs is returned by StartAnalysis when MAX_ACTIVE_JOBS
// non-terminal jobs are already running and no existing job matches the
// requested (project_id, analyzer_kind) pair.
var ErrTooManyActiveJobs = errors.New("jobregistry: max active jobs reached")

// ErrJobNotFound is returned by Subscribe, Cancel, State, and Stats for an
// unknown job_id.
var ErrJobNotFound = errors.New("jobregistry: job not found")

// DefaultMaxActiveJobs mirrors the documented MAX_ACTIVE_JOBS default.
const DefaultMaxActiveJobs = 4

// DefaultGrace is how long Cancel waits for a job's workers to unwind
// cooperatively before force-cancelling its run context.
const DefaultGrace = 5 * time.Second

// Deps bundles the process-wide collaborators every job under this
// registry shares. Pool is shared across every concurrent job — exactly
// one server per language is ever live, which is what gives LSP requests
// their required per-server ordering.
type Deps struct {
	Pool              orchestrator.LSPPool
	Store             graphstore.Store
	Broker            *broker.Broker
	CheckpointBaseDir string
	Tracer            trace.Tracer
	Logger            *slog.Logger
	Metrics           *observability.AnalysisMetrics
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}

	return slog.Default()
}

// entry is the registry's bookkeeping for one job: the Job itself plus the
// plumbing Cancel needs to force an unresponsive run to unwind.
type entry struct {
	job          *orchestrator.Job
	projectID    string
	analyzerKind string
	cancel       context.CancelFunc
	done         chan struct{}
}

// Registry tracks every job started in this process.
type Registry struct {
	deps      Deps
	maxActive int
	jobCfg    orchestrator.Config

	mu    sync.Mutex
	byID  map[string]*entry
	byKey map[string]string
}

// New returns a Registry ready to accept StartAnalysis calls. maxActive <=
// 0 falls back to DefaultMaxActiveJobs.
func New(deps Deps, maxActive int, jobCfg orchestrator.Config) *Registry {
	if maxActive <= 0 {
		maxActive = DefaultMaxActiveJobs
	}

	return &Registry{
		deps:      deps,
		maxActive: maxActive,
		jobCfg:    jobCfg,
		byID:      make(map[string]*entry),
		byKey:     make(map[string]string),
	}
}

func jobKey(projectID, analyzerKind string) string {
	return projectID + "\x00" + analyzerKind
}

func isTerminal(s graph.JobState) bool {
	switch s {
	case graph.JobCompleted, graph.JobFailed, graph.JobCancelled:
		return true
	default:
		return false
	}
}

func (r *Registry) countActiveLocked() int {
	active := 0

	for _, e := range r.byID {
		if !isTerminal(e.job.State()) {
			active++
		}
	}

	return active
}

// StartAnalysis starts a new job for (projectID, analyzerKind) rooted at
// rootPath, or rejoins an existing non-terminal job for the same pair —
// in which case rejoined is true and lastCommittedSequence lets the caller
// immediately request backlog replay via Subscribe.
func (r *Registry) StartAnalysis(projectID, rootPath, analyzerKind string) (jobID string, lastCommittedSequence uint64, rejoined bool, err error) {
	r.mu.Lock()

	key := jobKey(projectID, analyzerKind)
	if existingID, ok := r.byKey[key]; ok {
		if e, ok := r.byID[existingID]; ok && !isTerminal(e.job.State()) {
			r.mu.Unlock()

			return existingID, e.job.LastCommittedSequence(), true, nil
		}
	}

	if r.countActiveLocked() >= r.maxActive {
		r.mu.Unlock()

		return "", 0, false, ErrTooManyActiveJobs
	}

	id := uuid.NewString()

	var cp *checkpoint.Manager
	if r.deps.CheckpointBaseDir != "" {
		cp = checkpoint.NewManager(r.deps.CheckpointBaseDir, id)
	}

	job := orchestrator.New(id, projectID, rootPath, analyzerKind, r.jobCfg, orchestrator.Deps{
		Pool:       r.deps.Pool,
		Store:      r.deps.Store,
		Broker:     r.deps.Broker,
		Checkpoint: cp,
		Tracer:     r.deps.Tracer,
		Logger:     r.deps.Logger,
		Metrics:    r.deps.Metrics,
	})

	runCtx, cancel := context.WithCancel(context.Background())

	e := &entry{job: job, projectID: projectID, analyzerKind: analyzerKind, cancel: cancel, done: make(chan struct{})}
	r.byID[id] = e
	r.byKey[key] = id

	r.mu.Unlock()

	go r.run(runCtx, e)

	return id, 0, false, nil
}

// ErrCheckpointMismatch is returned by ResumeAnalysis when jobID's saved
// checkpoint does not belong to the given (projectID, analyzerKind) pair.
var ErrCheckpointMismatch = errors.New("jobregistry: checkpoint does not match project/analyzer")

// ResumeAnalysis restarts jobID from its saved checkpoint, preserving the
// original job_id rather than minting a new one — resume only works with
// the same id because the checkpoint manager is keyed by job_id. jobID
// must not already be registered as a live job, and CheckpointBaseDir must
// be configured with a checkpoint on disk for jobID matching projectID and
// analyzerKind.
func (r *Registry) ResumeAnalysis(jobID, projectID, rootPath, analyzerKind string) error {
	if r.deps.CheckpointBaseDir == "" {
		return fmt.Errorf("jobregistry: checkpoints are disabled, nothing to resume")
	}

	cp := checkpoint.NewManager(r.deps.CheckpointBaseDir, jobID)
	if !cp.Exists() {
		return fmt.Errorf("%w: job_id %s", ErrJobNotFound, jobID)
	}

	if err := cp.Validate(projectID, analyzerKind); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointMismatch, err)
	}

	r.mu.Lock()

	if _, exists := r.byID[jobID]; exists {
		r.mu.Unlock()

		return fmt.Errorf("jobregistry: job %s is already registered", jobID)
	}

	if r.countActiveLocked() >= r.maxActive {
		r.mu.Unlock()

		return ErrTooManyActiveJobs
	}

	job := orchestrator.New(jobID, projectID, rootPath, analyzerKind, r.jobCfg, orchestrator.Deps{
		Pool:       r.deps.Pool,
		Store:      r.deps.Store,
		Broker:     r.deps.Broker,
		Checkpoint: cp,
		Tracer:     r.deps.Tracer,
		Logger:     r.deps.Logger,
		Metrics:    r.deps.Metrics,
	})

	runCtx, cancel := context.WithCancel(context.Background())

	e := &entry{job: job, projectID: projectID, analyzerKind: analyzerKind, cancel: cancel, done: make(chan struct{})}
	r.byID[jobID] = e
	r.byKey[jobKey(projectID, analyzerKind)] = jobID

	r.mu.Unlock()

	go r.run(runCtx, e)

	return nil
}

func (r *Registry) run(ctx context.Context, e *entry) {
	defer close(e.done)

	if err := e.job.Run(ctx); err != nil {
		r.deps.logger().Warn("analysis job ended with error", "job_id", e.job.ID, "error", err)
	}
}

func (r *Registry) lookup(jobID string) (*entry, error) {
	r.mu.Lock()
	e, ok := r.byID[jobID]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	return e, nil
}

// Subscribe attaches a subscriber to jobID's batch stream, replaying
// backlog from fromSequence first when non-nil.
func (r *Registry) Subscribe(jobID string, fromSequence *uint64) (*broker.Subscription, error) {
	if _, err := r.lookup(jobID); err != nil {
		return nil, err
	}

	return r.deps.Broker.Subscribe(jobID, fromSequence), nil
}

// Cancel flips jobID to cancelled and closes its queue, then waits
// DefaultGrace for its workers to unwind cooperatively before
// force-cancelling the run context — which unblocks every ctx.Done()
// suspension point (queue pop, LSP request, store transaction) so Run
// returns promptly. The job's checkpoint, if any, reflects whatever was
// last durably applied; resuming it re-executes from there.
func (r *Registry) Cancel(jobID string) error {
	e, err := r.lookup(jobID)
	if err != nil {
		return err
	}

	e.job.Cancel()

	select {
	case <-e.done:
		return nil
	case <-time.After(DefaultGrace):
	}

	e.cancel()
	<-e.done

	return nil
}

// State reports jobID's current state machine position.
func (r *Registry) State(jobID string) (graph.JobState, error) {
	e, err := r.lookup(jobID)
	if err != nil {
		return "", err
	}

	return e.job.State(), nil
}

// Stats reports jobID's current running statistics.
func (r *Registry) Stats(jobID string) (orchestrator.Stats, error) {
	e, err := r.lookup(jobID)
	if err != nil {
		return orchestrator.Stats{}, err
	}

	return e.job.Stats(), nil
}

// LastCommittedSequence reports the highest batch sequence jobID has
// durably applied so far, for subscribe_response.
func (r *Registry) LastCommittedSequence(jobID string) (uint64, error) {
	e, err := r.lookup(jobID)
	if err != nil {
		return 0, err
	}

	return e.job.LastCommittedSequence(), nil
}

// Unavailable reports whether language has been declared unavailable on
// the shared LSP pool because its respawn budget is exhausted; a language
// with no launch spec reports false.
// It backs a serve command's readiness check: a process whose configured
// languages are all unavailable has nothing left to analyze.
func (r *Registry) Unavailable(language string) bool {
	return r.deps.Pool.Unavailable(language)
}

// Shutdown cancels every non-terminal job's run context and waits for all
// jobs to finish, then shuts down the shared LSP pool. Call this once, at
// process shutdown.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.byID))
	for _, e := range r.byID {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		if !isTerminal(e.job.State()) {
			e.job.Cancel()
			e.cancel()
		}
	}

	for _, e := range entries {
		<-e.done
	}

	r.deps.Pool.Shutdown(ctx)
}
