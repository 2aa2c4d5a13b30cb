// Package orchestrator drives the two-pass analysis pipeline — Init,
// Discovery, Pass 1 (structure), Pass 2 (references), Finalize — wiring
// together the file walker, LSP server pool, symbol mapper, symbol
// registry, graph store, checkpoint manager, and subscription broker for a
// single job.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/graphling/graphling/internal/broker"
	"github.com/graphling/graphling/internal/checkpoint"
	"github.com/graphling/graphling/internal/graphstore"
	"github.com/graphling/graphling/internal/lspclient"
	"github.com/graphling/graphling/internal/lsppool"
	"github.com/graphling/graphling/internal/observability"
	"github.com/graphling/graphling/internal/queue"
	"github.com/graphling/graphling/internal/registry"
	"github.com/graphling/graphling/internal/symbolmapper"
	"github.com/graphling/graphling/internal/walker"
	"github.com/graphling/graphling/pkg/graph"
)

// tracerName is the default OTel tracer name for this package, used when
// Deps.Tracer is nil.
const tracerName = "graphling.orchestrator"

// LSPPool is the subset of *lsppool.Pool a Job depends on, so tests can
// substitute a fake without spawning real language server processes.
type LSPPool interface {
	Acquire(ctx context.Context, language string) (*lspclient.Client, lsppool.Release, error)
	Unavailable(language string) bool
	Shutdown(ctx context.Context)
}

var _ LSPPool = (*lsppool.Pool)(nil)

// Config tunes batching, retry, and worker-pool behavior for a single job.
// Zero values fall back to the documented defaults.
type Config struct {
	// Workers caps how many files are analyzed concurrently per pass.
	// Default min(8, runtime.NumCPU()) — resolve this at the config layer;
	// orchestrator itself only falls back to a flat 8.
	Workers int
	// BatchNodes closes the current batch once it holds this many nodes.
	// Default 200.
	BatchNodes int
	// BatchEdges closes the current batch once it holds this many edges.
	// Default 400.
	BatchEdges int
	// BatchInterval closes the current batch after this much wall time
	// even if the node/edge thresholds haven't been hit. Default 500ms.
	BatchInterval time.Duration
	// MaxRetries is how many failures a file may accumulate: it is
	// re-enqueued after each failure until its RetryCount reaches
	// MaxRetries, then given up on. Default 3. Zero is kept as is (no
	// re-enqueue); only a negative value falls back to the default.
	MaxRetries int
	// MaxFileBytes is forwarded to the walker's size filter. Default 2MiB.
	MaxFileBytes int64
	// LSPRequestTimeout bounds every LSP request and queue pop. Default 30s.
	LSPRequestTimeout time.Duration
}

const (
	defaultWorkers      = 8
	defaultBatchNodes   = 200
	defaultBatchEdges   = 400
	defaultMaxRetries   = 3
	defaultMaxFileBytes = 2 << 20
)

var (
	defaultBatchInterval     = 500 * time.Millisecond
	defaultLSPRequestTimeout = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}

	if c.BatchNodes <= 0 {
		c.BatchNodes = defaultBatchNodes
	}

	if c.BatchEdges <= 0 {
		c.BatchEdges = defaultBatchEdges
	}

	if c.BatchInterval <= 0 {
		c.BatchInterval = defaultBatchInterval
	}

	if c.MaxRetries < 0 {
		c.MaxRetries = defaultMaxRetries
	}

	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = defaultMaxFileBytes
	}

	if c.LSPRequestTimeout <= 0 {
		c.LSPRequestTimeout = defaultLSPRequestTimeout
	}

	return c
}

// Deps bundles the collaborators a Job wires together. Store, Broker, and
// Pool are process-wide and shared across jobs — one LSP server per
// language guarantees per-server request ordering across every job that
// touches it, so a Job never shuts the pool down itself, only the Job
// Registry does, at process shutdown. Checkpoint is job-scoped and may be
// nil to disable resume/durability (tests, ephemeral runs).
type Deps struct {
	Pool       LSPPool
	Store      graphstore.Store
	Broker     *broker.Broker
	Checkpoint *checkpoint.Manager
	Tracer     trace.Tracer
	Logger     *slog.Logger
	Metrics    *observability.AnalysisMetrics
}

func (d Deps) tracer() trace.Tracer {
	if d.Tracer != nil {
		return d.Tracer
	}

	return otel.Tracer(tracerName)
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}

	return slog.Default()
}

// Stats accumulates the counters surfaced to subscribers as
// analysis_stats and fed to observability on Finalize.
type Stats struct {
	TotalFiles     int
	TotalBytes     int64
	ProcessedFiles int
	TotalSymbols   int
	TotalEdges     int
	Error          string
}

// Job runs the two-pass analysis pipeline for a single (project, analyzer)
// run. The zero value is not usable; use New.
type Job struct {
	ID           string
	ProjectID    string
	RootPath     string
	AnalyzerKind string

	cfg  Config
	deps Deps

	q   *queue.Queue
	reg *registry.Registry

	mu          sync.Mutex
	state       graph.JobState
	descriptors map[string]walker.FileDescriptor
	fileNodeIDs map[string]string
	seq         uint64
	cp          checkpoint.AnalysisCheckpoint
	stats       Stats
}

// New returns a pending Job ready for Run.
func New(id, projectID, rootPath, analyzerKind string, cfg Config, deps Deps) *Job {
	return &Job{
		ID:           id,
		ProjectID:    projectID,
		RootPath:     rootPath,
		AnalyzerKind: analyzerKind,
		cfg:          cfg.withDefaults(),
		deps:         deps,
		q:            queue.New(),
		reg:          registry.New(),
		descriptors:  make(map[string]walker.FileDescriptor),
		fileNodeIDs:  make(map[string]string),
		state:        graph.JobPending,
	}
}

// State reports the job's current position in the state machine.
func (j *Job) State() graph.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.state
}

func (j *Job) setState(s graph.JobState) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

// Stats returns a snapshot of the job's running statistics.
func (j *Job) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.stats
}

// LastCommittedSequence returns the highest batch sequence durably applied
// so far.
func (j *Job) LastCommittedSequence() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.seq
}

// Cancel transitions the job to cancelled and closes its work queue,
// unblocking any workers waiting on it. Callers drive in-flight LSP
// request cancellation and the grace period by cancelling the context
// passed to Run — Cancel itself only flips state and releases the queue,
// matching the Job Registry's ownership of cancel timing.
func (j *Job) Cancel() {
	j.setState(graph.JobCancelled)
	j.q.Close()
}

// Run executes Init, Discovery, Pass 1, Pass 2, and Finalize in order. On
// any phase error the job transitions to failed and Run returns that
// error; the checkpoint already written still permits a later resume.
func (j *Job) Run(ctx context.Context) error {
	ctx, span := j.deps.tracer().Start(ctx, "graphling.pass", trace.WithAttributes(
		attribute.String("graphling.job_id", j.ID),
		attribute.String("graphling.project_id", j.ProjectID),
	))
	defer span.End()

	j.setState(graph.JobRunning)

	if err := j.init(ctx); err != nil {
		return j.fail(err)
	}

	if err := j.discovery(ctx); err != nil {
		return j.fail(err)
	}

	if err := j.runPass(ctx, graph.PassStructure, j.processStructureFile); err != nil {
		return j.fail(err)
	}

	j.mu.Lock()
	j.cp.Pass = checkpoint.PassReferences
	j.mu.Unlock()

	if err := j.preparePass2(); err != nil {
		return j.fail(err)
	}

	if err := j.runPass(ctx, graph.PassReferences, j.processReferencesFile); err != nil {
		return j.fail(err)
	}

	if err := j.finalize(ctx); err != nil {
		return j.fail(err)
	}

	j.setState(graph.JobCompleted)

	return nil
}

func (j *Job) fail(err error) error {
	j.mu.Lock()
	j.stats.Error = err.Error()
	j.mu.Unlock()

	j.setState(graph.JobFailed)

	j.deps.logger().Error("analysis job failed", "job_id", j.ID, "error", err)

	return err
}

func (j *Job) init(ctx context.Context) error {
	ctx, span := j.deps.tracer().Start(ctx, "graphling.stage.init")
	defer span.End()

	j.mu.Lock()
	j.cp = checkpoint.AnalysisCheckpoint{Pass: checkpoint.PassStructure, FailedFiles: map[string]checkpoint.FailedFileEntry{}}
	j.mu.Unlock()

	if j.deps.Checkpoint != nil {
		state, ok, err := j.deps.Checkpoint.Resume()
		if err != nil {
			return fmt.Errorf("resume checkpoint: %w", err)
		}

		if ok {
			if state.FailedFiles == nil {
				state.FailedFiles = map[string]checkpoint.FailedFileEntry{}
			}

			j.mu.Lock()
			j.cp = state
			j.seq = uint64(state.LastCommittedSequence) //nolint:gosec // sequence is never negative.
			j.mu.Unlock()

			j.deps.logger().Info("resuming analysis job", "job_id", j.ID, "pass", state.Pass, "last_sequence", j.seq)
		}
	}

	root := graph.CodeNode{
		ID:        j.projectRootID(),
		ProjectID: j.ProjectID,
		URI:       j.projectRootURI(),
		Kind:      graph.KindProject,
		Name:      filepath.Base(j.RootPath),
	}

	if err := j.deps.Store.UpsertNodes(ctx, []graph.CodeNode{root}); err != nil {
		return fmt.Errorf("ensure project root node: %w", err)
	}

	j.reg.Put(root)

	return nil
}

// projectRootURI is the synthetic URI for the Project root node, and the
// prefix every file's URI is built from.
func (j *Job) projectRootURI() string {
	return "file://" + filepath.ToSlash(j.RootPath)
}

func (j *Job) projectRootID() string {
	return symbolmapper.NodeID(j.ProjectID, graph.KindProject, "project_root", j.projectRootURI())
}

func (j *Job) fileURI(relPath string) string {
	return j.projectRootURI() + "/" + relPath
}

func (j *Job) descriptorFor(path string) (walker.FileDescriptor, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	d, ok := j.descriptors[path]

	return d, ok
}

func (j *Job) nextSequence() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++

	return j.seq
}
