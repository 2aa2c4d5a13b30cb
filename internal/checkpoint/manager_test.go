package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_New(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, "job-1")

	assert.Equal(t, dir, m.BaseDir)
	assert.Equal(t, "job-1", m.JobID)
	assert.Equal(t, DefaultMaxAge, m.MaxAge)
	assert.Equal(t, int64(DefaultMaxSize), m.MaxSize)
}

func TestManager_CheckpointDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, "job-1")
	expected := filepath.Join(dir, "job-1")
	assert.Equal(t, expected, m.CheckpointDir())
}

func TestManager_MetadataPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, "job-1")
	expected := filepath.Join(dir, "job-1", "checkpoint.json")
	assert.Equal(t, expected, m.MetadataPath())
}

func TestManager_Exists_NoCheckpoint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, "job-1")

	assert.False(t, m.Exists())
}

func TestManager_Exists_WithCheckpoint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, "job-1")

	cpDir := m.CheckpointDir()
	err := os.MkdirAll(cpDir, 0o750)
	require.NoError(t, err)

	err = os.WriteFile(m.MetadataPath(), []byte(`{"version":1}`), 0o600)
	require.NoError(t, err)

	assert.True(t, m.Exists())
}

func TestManager_Clear(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, "job-1")

	cpDir := m.CheckpointDir()
	err := os.MkdirAll(cpDir, 0o750)
	require.NoError(t, err)

	err = os.WriteFile(m.MetadataPath(), []byte(`{"version":1}`), 0o600)
	require.NoError(t, err)

	require.True(t, m.Exists())

	err = m.Clear()
	require.NoError(t, err)

	assert.False(t, m.Exists())
}

func TestManager_Clear_NonExistent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, "job-1")

	err := m.Clear()
	assert.NoError(t, err)
}

func TestManager_SaveLoad_Metadata(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, "job-1")

	state := AnalysisCheckpoint{
		JobID:          "job-1",
		Pass:           PassStructure,
		ProcessedFiles: []string{"a.go", "b.go"},
		FailedFiles: map[string]FailedFileEntry{
			"c.go": {RetryCount: 1, LastError: "lsp timeout"},
		},
		LastCommittedSequence: 7,
	}

	err := m.Save(nil, state, "proj-1", "lsp")
	require.NoError(t, err)

	assert.True(t, m.Exists())

	meta, err := m.LoadMetadata()
	require.NoError(t, err)

	assert.Equal(t, MetadataVersion, meta.Version)
	assert.Equal(t, "proj-1", meta.ProjectID)
	assert.Equal(t, "lsp", meta.Analyzer)
	assert.Equal(t, state.ProcessedFiles, meta.State.ProcessedFiles)
	assert.Equal(t, state.LastCommittedSequence, meta.State.LastCommittedSequence)
	assert.NotEmpty(t, meta.State.UpdatedAt)
}

func TestManager_SaveLoad_Checkpointables(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, "job-1")

	state := AnalysisCheckpoint{
		JobID:                 "job-1",
		Pass:                  PassReferences,
		ProcessedFiles:        []string{"a.go"},
		LastCommittedSequence: 3,
	}

	original := &mockCheckpointable{data: "pool state"}
	checkpointables := []Checkpointable{original}

	err := m.Save(checkpointables, state, "proj-1", "lsp")
	require.NoError(t, err)

	restored := &mockCheckpointable{}
	restoredList := []Checkpointable{restored}

	loadedState, err := m.Load(restoredList)
	require.NoError(t, err)

	assert.Equal(t, original.data, restored.data)
	assert.Equal(t, state.ProcessedFiles, loadedState.ProcessedFiles)
	assert.Equal(t, state.LastCommittedSequence, loadedState.LastCommittedSequence)
}

func TestManager_Resume_NoCheckpoint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, "job-1")

	state, ok, err := m.Resume()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, PassStructure, state.Pass)
	assert.Empty(t, state.ProcessedFiles)
	assert.Empty(t, state.FailedFiles)
}

func TestManager_Resume_WithCheckpoint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, "job-1")

	saved := AnalysisCheckpoint{
		JobID:                 "job-1",
		Pass:                  PassReferences,
		ProcessedFiles:        []string{"a.go"},
		LastCommittedSequence: 5,
	}

	err := m.Save(nil, saved, "proj-1", "lsp")
	require.NoError(t, err)

	resumed, ok, err := m.Resume()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, PassReferences, resumed.Pass)
	assert.Equal(t, []string{"a.go"}, resumed.ProcessedFiles)
	assert.Equal(t, int64(5), resumed.LastCommittedSequence)
}

func TestManager_DefaultValues(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 7*24*time.Hour, DefaultMaxAge)
	assert.Equal(t, 1<<30, DefaultMaxSize) // 1GB.
}

func TestManager_Validate_Success(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, "job-1")

	err := m.Save(nil, AnalysisCheckpoint{}, "proj-1", "lsp")
	require.NoError(t, err)

	err = m.Validate("proj-1", "lsp")
	assert.NoError(t, err)
}

func TestManager_Validate_WrongProject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, "job-1")

	err := m.Save(nil, AnalysisCheckpoint{}, "proj-1", "lsp")
	require.NoError(t, err)

	err = m.Validate("proj-2", "lsp")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrProjectMismatch)
}

func TestManager_Validate_WrongAnalyzer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, "job-1")

	err := m.Save(nil, AnalysisCheckpoint{}, "proj-1", "lsp")
	require.NoError(t, err)

	err = m.Validate("proj-1", "other")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrAnalyzerMismatch)
}

func TestManager_Validate_NoCheckpoint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, "job-1")

	err := m.Validate("proj-1", "lsp")
	assert.Error(t, err)
}

func TestDefaultDir(t *testing.T) {
	t.Parallel()

	dir := DefaultDir()
	assert.Contains(t, dir, ".graphling")
	assert.Contains(t, dir, "checkpoints")
}

func TestManager_Save_ErrorOnMkdir(t *testing.T) {
	t.Parallel()

	// Use a path that can't be created (file instead of dir).
	tmpFile, err := os.CreateTemp(t.TempDir(), "checkpoint-test")
	require.NoError(t, err)
	tmpFile.Close()

	// Try to create checkpoint dir inside a file (should fail).
	m := NewManager(tmpFile.Name(), "job-1")
	err = m.Save(nil, AnalysisCheckpoint{}, "proj-1", "lsp")
	assert.Error(t, err)
}
