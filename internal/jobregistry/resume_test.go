package jobregistry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphling/graphling/internal/broker"
	"github.com/graphling/graphling/internal/graphstore"
	"github.com/graphling/graphling/internal/jobregistry"
	"github.com/graphling/graphling/internal/orchestrator"
	"github.com/graphling/graphling/pkg/graph"
)

func newCheckpointedTestRegistry(t *testing.T, maxActive int, checkpointDir string) *jobregistry.Registry {
	t.Helper()

	pool := newFakePool(t)
	store := graphstore.NewMemoryStore(graphstore.Config{})
	b := broker.New(broker.Config{})

	return jobregistry.New(jobregistry.Deps{
		Pool:              pool,
		Store:             store,
		Broker:            b,
		CheckpointBaseDir: checkpointDir,
	}, maxActive, orchestrator.Config{BatchInterval: 20 * time.Millisecond})
}

func TestRegistry_ResumeAnalysisRejectsWhenNoCheckpointExists(t *testing.T) {
	t.Parallel()

	r := newCheckpointedTestRegistry(t, 4, t.TempDir())

	err := r.ResumeAnalysis("does-not-exist", "proj1", "/tmp", "default")
	require.ErrorIs(t, err, jobregistry.ErrJobNotFound)
}

func TestRegistry_ResumeAnalysisRejectsWhenCheckpointsDisabled(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, 4)

	err := r.ResumeAnalysis("some-job", "proj1", "/tmp", "default")
	require.Error(t, err)
}

func TestRegistry_ResumeAnalysisRejectsProjectMismatch(t *testing.T) {
	t.Parallel()

	root := writeProject(t, map[string]string{"a.go": "package a\n\nfunc A() {}\n"})
	checkpointDir := t.TempDir()
	r := newCheckpointedTestRegistry(t, 4, checkpointDir)

	jobID, _, _, err := r.StartAnalysis("proj1", root, "default")
	require.NoError(t, err)

	waitForTerminal(t, r, jobID)

	err = r.ResumeAnalysis(jobID, "a-different-project", root, "default")
	require.ErrorIs(t, err, jobregistry.ErrCheckpointMismatch)
}

func TestRegistry_ResumeAnalysisRestartsUnderTheSameJobID(t *testing.T) {
	t.Parallel()

	root := writeProject(t, map[string]string{"a.go": "package a\n\nfunc A() {}\n"})
	checkpointDir := t.TempDir()
	r := newCheckpointedTestRegistry(t, 4, checkpointDir)

	jobID, _, _, err := r.StartAnalysis("proj1", root, "default")
	require.NoError(t, err)

	waitForTerminal(t, r, jobID)

	err = r.ResumeAnalysis(jobID, "proj1", root, "default")
	require.NoError(t, err)

	state := waitForTerminal(t, r, jobID)
	assert.Equal(t, graph.JobCompleted, state)
}

func TestRegistry_ResumeAnalysisRejectsAlreadyRegisteredJobID(t *testing.T) {
	t.Parallel()

	root := writeProject(t, map[string]string{"a.go": "package a\n\nfunc A() {}\n"})
	checkpointDir := t.TempDir()
	r := newCheckpointedTestRegistry(t, 4, checkpointDir)

	jobID, _, _, err := r.StartAnalysis("proj1", root, "default")
	require.NoError(t, err)

	err = r.ResumeAnalysis(jobID, "proj1", root, "default")
	require.Error(t, err)

	waitForTerminal(t, r, jobID)
}
