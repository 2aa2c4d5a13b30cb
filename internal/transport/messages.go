package transport

import (
	"github.com/graphling/graphling/internal/orchestrator"
	"github.com/graphling/graphling/pkg/graph"
)

// Client message types, per the start_analysis/subscribe/cancel/ping
// catalogue.
const (
	TypeStartAnalysis = "start_analysis"
	TypeSubscribe     = "subscribe"
	TypeCancel        = "cancel"
	TypePing          = "ping"
)

// Server message types.
const (
	TypeStartAnalysisResponse = "start_analysis_response"
	TypeBatchUpdate           = "batch_update"
	TypeStatusUpdate          = "status_update"
	TypeSubscribeResponse     = "subscribe_response"
	TypeAnalysisComplete      = "analysis_complete"
	TypeError                 = "error"
	TypePong                  = "pong"
)

// Error type classification carried on an error message's error_type
// field.
const (
	ErrorTypeProjectNotFound = "ProjectNotFoundError"
	ErrorTypeJobNotFound     = "JobNotFoundError"
	ErrorTypeValue           = "ValueError"
	ErrorTypeServer          = "ServerError"
	ErrorTypeSlowConsumer    = "SlowConsumer"
	ErrorTypeResyncRequired  = "ResyncRequired"
)

// ClientMessage is the envelope for every frame a client sends. Only the
// fields relevant to Type are populated; the rest are the zero value.
type ClientMessage struct {
	Type         string  `json:"type"`
	ProjectID    string  `json:"project_id,omitempty"`
	AnalyzerType string  `json:"analyzer_type,omitempty"`
	JobID        string  `json:"job_id,omitempty"`
	FromSequence *uint64 `json:"from_sequence,omitempty"`
}

// AnalysisStatsDTO mirrors orchestrator.Stats for wire transmission.
type AnalysisStatsDTO struct {
	ProcessedFiles int    `json:"processed_files"`
	TotalFiles     int    `json:"total_files"`
	TotalSymbols   int    `json:"total_symbols"`
	TotalEdges     int    `json:"total_edges"`
	Error          string `json:"error,omitempty"`
}

func statsDTO(s orchestrator.Stats) AnalysisStatsDTO {
	return AnalysisStatsDTO{
		ProcessedFiles: s.ProcessedFiles,
		TotalFiles:     s.TotalFiles,
		TotalSymbols:   s.TotalSymbols,
		TotalEdges:     s.TotalEdges,
		Error:          s.Error,
	}
}

// GraphDataDTO is an optional full-snapshot payload carried on
// start_analysis_response when a caller rejoins a job past the broker's
// replay window and needs the current graph state instead of a sequence to
// resume from.
type GraphDataDTO struct {
	Nodes []graph.CodeNode `json:"nodes"`
	Edges []graph.Edge     `json:"edges"`
}

// ServerMessage is the envelope for every frame the server sends. Only the
// fields relevant to Type are populated.
type ServerMessage struct {
	Type                   string            `json:"type"`
	JobID                  string            `json:"job_id,omitempty"`
	Status                 string            `json:"status,omitempty"`
	AnalysisStats          *AnalysisStatsDTO `json:"analysis_stats,omitempty"`
	Statistics             *AnalysisStatsDTO `json:"statistics,omitempty"`
	GraphData              *GraphDataDTO     `json:"graph_data,omitempty"`
	Sequence               uint64            `json:"sequence,omitempty"`
	Nodes                  []graph.CodeNode  `json:"nodes,omitempty"`
	Edges                  []graph.Edge      `json:"edges,omitempty"`
	LastCommittedSequence  uint64            `json:"last_committed_sequence,omitempty"`
	Message                string            `json:"message,omitempty"`
	ErrorType              string            `json:"error_type,omitempty"`
}
