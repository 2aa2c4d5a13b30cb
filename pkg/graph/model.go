// Package graph defines the shared data model for ingested source-code
// knowledge graphs: projects, jobs, nodes, edges, and the batched updates
// that flow from the analysis pipeline to subscribers.
package graph

import "time"

// NodeKind enumerates the symbol kinds a CodeNode can represent, derived
// from LSP SymbolKind values.
type NodeKind string

// Node kinds. These mirror the subset of LSP SymbolKind values the Symbol
// Mapper cares about; unmapped LSP kinds fall back to KindOther. Config,
// Field, Parameter, Annotation, Event, and Operator are part of the closed
// kind enumeration but are never produced by mapSymbolKind: LSP fields
// collapse into KindVariable, LSP's Event and Operator kinds fall back to
// KindOther, and no LSP SymbolKind value corresponds to Config, Parameter,
// or Annotation (see DESIGN.md's Open Question decisions on NodeKind
// coverage). Project is never produced by
// mapSymbolKind either, but for a different reason: it is assigned
// directly to the synthetic root node the Orchestrator creates per job,
// one level above anything documentSymbol can report.
const (
	KindProject    NodeKind = "project"
	KindFile       NodeKind = "file"
	KindConfig     NodeKind = "config"
	KindModule     NodeKind = "module"
	KindNamespace  NodeKind = "namespace"
	KindPackage    NodeKind = "package"
	KindClass      NodeKind = "class"
	KindInterface  NodeKind = "interface"
	KindStruct     NodeKind = "struct"
	KindFunction   NodeKind = "function"
	KindMethod     NodeKind = "method"
	KindField      NodeKind = "field"
	KindVariable   NodeKind = "variable"
	KindConstant   NodeKind = "constant"
	KindParameter  NodeKind = "parameter"
	KindAnnotation NodeKind = "annotation"
	KindEvent      NodeKind = "event"
	KindOperator   NodeKind = "operator"
	KindEnum       NodeKind = "enum"
	KindEnumMember NodeKind = "enum_member"
	KindOther      NodeKind = "other"
)

// EdgeType enumerates the relationship types between two CodeNodes.
type EdgeType string

// Edge types.
const (
	EdgeContains     EdgeType = "CONTAINS"
	EdgeReferences   EdgeType = "REFERENCES"
	EdgeImplements   EdgeType = "IMPLEMENTS"
	EdgeInheritsFrom EdgeType = "INHERITS_FROM"
	EdgeImports      EdgeType = "IMPORTS"
	EdgePartOf       EdgeType = "PART_OF"
	EdgeDependsOn    EdgeType = "DEPENDS_ON"
	EdgeCalls        EdgeType = "CALLS"
	EdgeOverrides    EdgeType = "OVERRIDES"
	EdgeHasType      EdgeType = "HAS_TYPE"
)

// Position is a zero-based line/column location within a file.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range spans from Start to End within a single file.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// CodeNode is a single symbol or file discovered during analysis. Its ID is
// a deterministic hash of (project_id, kind, fully qualified name, uri) so
// that re-analysis of unchanged code yields identical node ids.
type CodeNode struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"project_id"`
	URI       string   `json:"uri"`
	Kind      NodeKind `json:"kind"`
	Name      string   `json:"name"`
	Detail    string   `json:"detail,omitempty"`
	Range     Range    `json:"range"`
	Language  string   `json:"language"`
}

// Edge is a directed relationship between two CodeNodes. Its identity is
// the (source, target, type) triple — duplicate edges discovered via
// different LSP calls collapse to the same id.
type Edge struct {
	ID       string   `json:"id"`
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Type     EdgeType `json:"type"`
}

// BatchUpdate is a sequenced unit of graph mutation produced by the
// Orchestrator and published through the Subscription Broker. Sequence is
// strictly increasing per job and never reused, even across resumes.
type BatchUpdate struct {
	JobID     string     `json:"job_id"`
	Sequence  uint64     `json:"sequence"`
	Nodes     []CodeNode `json:"nodes,omitempty"`
	Edges     []Edge     `json:"edges,omitempty"`
	Pass      Pass       `json:"pass"`
	Final     bool       `json:"final"`
	CreatedAt time.Time  `json:"created_at"`
}

// Pass identifies which analysis pass produced a batch or marks checkpoint
// completion state.
type Pass string

// Pass markers.
const (
	PassStructure  Pass = "structure"
	PassReferences Pass = "references"
	PassDone       Pass = "done"
)

// JobState is the state machine position of a Job.
type JobState string

// Job states.
const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobPaused    JobState = "paused"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Project identifies a root filesystem path under analysis.
type Project struct {
	ID        string    `json:"id"`
	RootPath  string    `json:"root_path"`
	CreatedAt time.Time `json:"created_at"`
}

// Job is one analysis run over a Project for a given analyzer kind.
// start_analysis is idempotent per (ProjectID, AnalyzerKind): a repeated
// call with the same pair returns the existing Job rather than starting a
// second one.
type Job struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	AnalyzerKind string    `json:"analyzer_kind"`
	State        JobState  `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Error        string    `json:"error,omitempty"`
}
