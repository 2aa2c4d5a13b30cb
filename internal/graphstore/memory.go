package graphstore

import (
	"context"
	"sync"

	"github.com/graphling/graphling/pkg/graph"
)

// edgeKey is an edge's idempotency key: (source, target, type).
type edgeKey struct {
	source, target string
	typ             graph.EdgeType
}

// MemoryStore is an in-memory reference Store, useful for tests and for
// running the pipeline without a real graph database configured.
// UpsertNodes/UpsertEdges key on id so repeated application is a no-op
// beyond overwriting with (presumably identical) data.
type MemoryStore struct {
	cfg Config

	mu                    sync.Mutex
	nodes                 map[string]graph.CodeNode
	edges                 map[edgeKey]graph.Edge
	lastCommittedSequence map[string]uint64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(cfg Config) *MemoryStore {
	return &MemoryStore{
		cfg:                   cfg.withDefaults(),
		nodes:                 make(map[string]graph.CodeNode),
		edges:                 make(map[edgeKey]graph.Edge),
		lastCommittedSequence: make(map[string]uint64),
	}
}

// UpsertNodes implements Store.
func (s *MemoryStore) UpsertNodes(_ context.Context, nodes []graph.CodeNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range nodes {
		s.nodes[n.ID] = n
	}

	return nil
}

// UpsertEdges implements Store.
func (s *MemoryStore) UpsertEdges(_ context.Context, edges []graph.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range edges {
		s.edges[edgeKeyOf(e)] = e
	}

	return nil
}

func edgeKeyOf(e graph.Edge) edgeKey {
	return edgeKey{source: e.Source, target: e.Target, typ: e.Type}
}

// ApplyBatch implements Store, splitting batch.Nodes/batch.Edges into
// sub-transactions sized by Config and committing batch.Sequence as this
// job's last-committed sequence only once every sub-transaction has
// succeeded.
func (s *MemoryStore) ApplyBatch(ctx context.Context, batch graph.BatchUpdate) error {
	for _, chunk := range chunkNodes(batch.Nodes, s.cfg.MaxNodeBatch) {
		if err := s.UpsertNodes(ctx, chunk); err != nil {
			return &StoreError{Op: "apply_batch.upsert_nodes", Retryable: true, Err: err}
		}
	}

	for _, chunk := range chunkEdges(batch.Edges, s.cfg.MaxEdgeBatch) {
		if err := s.UpsertEdges(ctx, chunk); err != nil {
			return &StoreError{Op: "apply_batch.upsert_edges", Retryable: true, Err: err}
		}
	}

	s.mu.Lock()
	if batch.Sequence > s.lastCommittedSequence[batch.JobID] {
		s.lastCommittedSequence[batch.JobID] = batch.Sequence
	}
	s.mu.Unlock()

	return nil
}

// LastCommittedSequence returns the highest sequence number committed for
// jobID, or 0 if none has been applied yet.
func (s *MemoryStore) LastCommittedSequence(jobID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastCommittedSequence[jobID]
}

// Node returns a node by id, for assertions in tests and callers that
// need to inspect committed state directly.
func (s *MemoryStore) Node(id string) (graph.CodeNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]

	return n, ok
}

// NodeCount reports how many distinct nodes have been upserted.
func (s *MemoryStore) NodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.nodes)
}

// EdgeCount reports how many distinct (source, target, type) edges have
// been upserted.
func (s *MemoryStore) EdgeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.edges)
}
