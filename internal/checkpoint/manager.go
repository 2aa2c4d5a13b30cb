package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MetadataVersion is the current checkpoint metadata format version.
const MetadataVersion = 1

// Sentinel errors for checkpoint validation.
var (
	ErrProjectMismatch  = errors.New("project mismatch")
	ErrAnalyzerMismatch = errors.New("analyzer mismatch")
)

// DefaultDir returns the default checkpoint directory (~/.graphling/checkpoints).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return filepath.Join(home, ".graphling", "checkpoints")
}

// Default retention values.
const (
	DefaultMaxAge  = 7 * 24 * time.Hour // 7 days.
	DefaultMaxSize = 1 << 30            // 1GB.
)

// Directory permissions for checkpoints.
const dirPerm = 0o750

// Manager persists and restores AnalysisCheckpoint state for a single job,
// keyed by job_id under BaseDir. Save is called exactly once per durably
// applied BatchUpdate, after the batch has been written to the graph store
// and before it is published to subscribers — this ordering is the
// crash-safety invariant: a crash between apply and checkpoint causes at
// most one replay, absorbed by idempotent upsert on resume.
type Manager struct {
	BaseDir string
	JobID   string
	MaxAge  time.Duration
	MaxSize int64
}

// NewManager creates a new checkpoint manager scoped to a single job.
func NewManager(baseDir, jobID string) *Manager {
	return &Manager{
		BaseDir: baseDir,
		JobID:   jobID,
		MaxAge:  DefaultMaxAge,
		MaxSize: DefaultMaxSize,
	}
}

// CheckpointDir returns the directory for this job's checkpoint.
func (m *Manager) CheckpointDir() string {
	return filepath.Join(m.BaseDir, m.JobID)
}

// MetadataPath returns the path to the metadata file.
func (m *Manager) MetadataPath() string {
	return filepath.Join(m.CheckpointDir(), "checkpoint.json")
}

// Exists returns true if a valid checkpoint exists.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.MetadataPath())

	return err == nil
}

// Clear removes the checkpoint for the current job.
func (m *Manager) Clear() error {
	cpDir := m.CheckpointDir()

	_, statErr := os.Stat(cpDir)
	if os.IsNotExist(statErr) {
		return nil
	}

	err := os.RemoveAll(cpDir)
	if err != nil {
		return fmt.Errorf("remove checkpoint dir: %w", err)
	}

	return nil
}

// Save atomically persists the checkpoint for the given job. It also saves
// any Checkpointable side-state (e.g. the LSP server pool's respawn
// counters) alongside the metadata file.
func (m *Manager) Save(
	checkpointables []Checkpointable,
	state AnalysisCheckpoint,
	projectID string,
	analyzerName string,
) error {
	cpDir := m.CheckpointDir()

	err := os.MkdirAll(cpDir, dirPerm)
	if err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	for i, cp := range checkpointables {
		sideDir := filepath.Join(cpDir, fmt.Sprintf("side_%d", i))

		mkdirErr := os.MkdirAll(sideDir, dirPerm)
		if mkdirErr != nil {
			return fmt.Errorf("create side-state dir: %w", mkdirErr)
		}

		saveErr := cp.SaveCheckpoint(sideDir)
		if saveErr != nil {
			return fmt.Errorf("save side-state %d: %w", i, saveErr)
		}
	}

	state.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	meta := Metadata{
		Version:    MetadataVersion,
		ProjectID:  projectID,
		ProjectRef: m.JobID,
		CreatedAt:  state.UpdatedAt,
		Analyzer:   analyzerName,
		State:      state,
	}

	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	writeErr := atomicWriteFile(m.MetadataPath(), metaData)
	if writeErr != nil {
		return fmt.Errorf("write metadata: %w", writeErr)
	}

	return nil
}

// atomicWriteFile writes to a temp file in the same directory, then renames
// it into place, so a reader never observes a partially written checkpoint.
func atomicWriteFile(path string, data []byte) error {
	tmp := path + ".tmp"

	err := os.WriteFile(tmp, data, 0o600)
	if err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	err = os.Rename(tmp, path)
	if err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// LoadMetadata loads the checkpoint metadata.
func (m *Manager) LoadMetadata() (*Metadata, error) {
	data, err := os.ReadFile(m.MetadataPath())
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var meta Metadata

	unmarshalErr := json.Unmarshal(data, &meta)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", unmarshalErr)
	}

	return &meta, nil
}

// Load restores side-state for all checkpointables and returns the
// persisted AnalysisCheckpoint.
func (m *Manager) Load(checkpointables []Checkpointable) (*AnalysisCheckpoint, error) {
	meta, err := m.LoadMetadata()
	if err != nil {
		return nil, err
	}

	cpDir := m.CheckpointDir()

	for i, cp := range checkpointables {
		sideDir := filepath.Join(cpDir, fmt.Sprintf("side_%d", i))

		loadErr := cp.LoadCheckpoint(sideDir)
		if loadErr != nil {
			return nil, fmt.Errorf("load side-state %d: %w", i, loadErr)
		}
	}

	return &meta.State, nil
}

// Resume loads the checkpoint for resuming a job. If no checkpoint exists,
// it returns an empty resumable state (pass=structure, no processed or
// failed files) and ok=false, rather than an error — a fresh job has
// nothing to resume from.
func (m *Manager) Resume() (state AnalysisCheckpoint, ok bool, err error) {
	if !m.Exists() {
		return AnalysisCheckpoint{Pass: PassStructure, FailedFiles: map[string]FailedFileEntry{}}, false, nil
	}

	meta, loadErr := m.LoadMetadata()
	if loadErr != nil {
		return AnalysisCheckpoint{}, false, loadErr
	}

	return meta.State, true, nil
}

// Validate checks if the checkpoint is valid for the given parameters.
func (m *Manager) Validate(projectID string, analyzerName string) error {
	meta, err := m.LoadMetadata()
	if err != nil {
		return err
	}

	if meta.ProjectID != projectID {
		return fmt.Errorf("%w: checkpoint has %q, got %q", ErrProjectMismatch, meta.ProjectID, projectID)
	}

	if meta.Analyzer != analyzerName {
		return fmt.Errorf("%w: checkpoint has %q, got %q", ErrAnalyzerMismatch, meta.Analyzer, analyzerName)
	}

	return nil
}
