package checkpoint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalysisCheckpoint_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	state := AnalysisCheckpoint{
		JobID:          "job-1",
		Pass:           PassReferences,
		ProcessedFiles: []string{"a.go", "b.go"},
		FailedFiles: map[string]FailedFileEntry{
			"c.go": {RetryCount: 1, LastError: "timeout", LastPosition: Position{Line: 10, Char: 4}},
		},
		LastCommittedSequence: 42,
		UpdatedAt:             "2026-02-05T12:00:00Z",
	}

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var restored AnalysisCheckpoint

	err = json.Unmarshal(data, &restored)
	require.NoError(t, err)

	assert.Equal(t, state, restored)
}

func TestMetadata_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	meta := Metadata{
		Version:    1,
		ProjectID:  "proj-1",
		ProjectRef: "abc123",
		Analyzer:   "lsp",
		State: AnalysisCheckpoint{
			JobID:          "job-1",
			Pass:           PassStructure,
			ProcessedFiles: []string{"a.go"},
			FailedFiles:    map[string]FailedFileEntry{},
		},
	}

	data, err := json.Marshal(meta)
	require.NoError(t, err)

	var restored Metadata

	err = json.Unmarshal(data, &restored)
	require.NoError(t, err)

	assert.Equal(t, meta.Version, restored.Version)
	assert.Equal(t, meta.ProjectID, restored.ProjectID)
	assert.Equal(t, meta.Analyzer, restored.Analyzer)
	assert.Equal(t, meta.State.ProcessedFiles, restored.State.ProcessedFiles)
}

func TestMetadata_CreatedAt(t *testing.T) {
	t.Parallel()

	meta := Metadata{
		Version:   1,
		CreatedAt: "2026-02-05T12:00:00Z",
	}

	data, err := json.Marshal(meta)
	require.NoError(t, err)

	var restored Metadata

	err = json.Unmarshal(data, &restored)
	require.NoError(t, err)

	assert.Equal(t, "2026-02-05T12:00:00Z", restored.CreatedAt)
}
