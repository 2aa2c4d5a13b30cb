// Package graphstore defines the Graph Store Adapter interface — the
// durable sink for nodes, edges, and batch updates produced by the
// analysis pipeline — plus an in-memory reference implementation and a
// retrying decorator for transient store failures.
package graphstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/graphling/graphling/pkg/graph"
)

// Store is the adapter interface the orchestrator writes through. All
// three operations must be idempotent: replaying the same nodes, edges,
// or batch leaves the store in the same state as applying it once.
// Implementations key nodes by (node_id) and edges by (source, target,
// type).
type Store interface {
	UpsertNodes(ctx context.Context, nodes []graph.CodeNode) error
	UpsertEdges(ctx context.Context, edges []graph.Edge) error
	// ApplyBatch durably applies every node and edge in batch. The
	// orchestrator may rely on ApplyBatch internally splitting large
	// batches into multiple sub-transactions sized by Config, but the
	// caller only observes the batch as applied once ApplyBatch returns
	// nil — sequence numbers must not be treated as committed until then.
	ApplyBatch(ctx context.Context, batch graph.BatchUpdate) error
}

// StoreError wraps a failure from a Store implementation, distinguishing
// transient failures (connection reset, deadline exceeded on the
// underlying transport) worth retrying from permanent ones (malformed
// data, constraint violation) that a retry cannot fix.
type StoreError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("graphstore: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Retryable reports whether err is a StoreError marked retryable.
func Retryable(err error) bool {
	var se *StoreError

	return errors.As(err, &se) && se.Retryable
}

// Config tunes sub-transaction batch sizing. Zero values fall back to the
// documented defaults.
type Config struct {
	// MaxNodeBatch caps nodes applied per sub-transaction. Default 500.
	MaxNodeBatch int
	// MaxEdgeBatch caps edges applied per sub-transaction. Default 1000.
	MaxEdgeBatch int
}

const (
	defaultMaxNodeBatch = 500
	defaultMaxEdgeBatch = 1000
)

func (c Config) withDefaults() Config {
	if c.MaxNodeBatch <= 0 {
		c.MaxNodeBatch = defaultMaxNodeBatch
	}

	if c.MaxEdgeBatch <= 0 {
		c.MaxEdgeBatch = defaultMaxEdgeBatch
	}

	return c
}

func chunkNodes(nodes []graph.CodeNode, size int) [][]graph.CodeNode {
	if len(nodes) == 0 {
		return nil
	}

	var out [][]graph.CodeNode

	for i := 0; i < len(nodes); i += size {
		end := min(i+size, len(nodes))
		out = append(out, nodes[i:end])
	}

	return out
}

func chunkEdges(edges []graph.Edge, size int) [][]graph.Edge {
	if len(edges) == 0 {
		return nil
	}

	var out [][]graph.Edge

	for i := 0; i < len(edges); i += size {
		end := min(i+size, len(edges))
		out = append(out, edges[i:end])
	}

	return out
}
