// Package checkpoint provides state persistence for resumable analysis jobs.
package checkpoint

// Pass identifies which phase of the two-pass analysis a checkpoint was
// taken in.
type Pass string

// Pass values mirror the orchestrator's pipeline phases.
const (
	PassStructure  Pass = "structure"
	PassReferences Pass = "references"
	PassDone       Pass = "done"
)

// Position marks a location within a file, used to resume a retried file at
// the exact offending symbol rather than reprocessing it from scratch.
type Position struct {
	Line int `json:"line"`
	Char int `json:"char"`
}

// FailedFileEntry tracks a file that failed analysis and is eligible for
// retry until RetryCount reaches the job's MAX_RETRIES.
type FailedFileEntry struct {
	RetryCount   int      `json:"retry_count"`
	LastError    string   `json:"last_error"`
	LastPosition Position `json:"last_position"`
}

// AnalysisCheckpoint is the durable, resumable state of a single analysis
// job: which files have been processed, which have failed (and why), the
// current pass, and the highest batch sequence durably applied to the graph
// store. processed_files and failed_files.keys are always disjoint.
type AnalysisCheckpoint struct {
	JobID                 string                     `json:"job_id"`
	Pass                  Pass                       `json:"pass"`
	ProcessedFiles        []string                   `json:"processed_files"`
	FailedFiles           map[string]FailedFileEntry `json:"failed_files"`
	LastCommittedSequence int64                      `json:"last_committed_sequence"`
	UpdatedAt             string                     `json:"updated_at"`
}

// Metadata holds checkpoint metadata for validation and resume.
type Metadata struct {
	Version    int                `json:"version"`
	ProjectID  string             `json:"project_id"`
	ProjectRef string             `json:"project_ref"`
	CreatedAt  string             `json:"created_at"`
	Analyzer   string             `json:"analyzer"`
	State      AnalysisCheckpoint `json:"state"`
}
