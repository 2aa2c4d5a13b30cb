package graphstore_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphling/graphling/internal/graphstore"
	"github.com/graphling/graphling/pkg/graph"
)

// flakyStore fails its first failCount calls to each method with a
// retryable StoreError, then delegates to inner.
type flakyStore struct {
	inner          graphstore.Store
	failNodeCalls  atomic.Int32
	failEdgeCalls  atomic.Int32
	failBatchCalls atomic.Int32
	permanent      bool
}

func (f *flakyStore) UpsertNodes(ctx context.Context, nodes []graph.CodeNode) error {
	if f.failNodeCalls.Add(-1) >= 0 {
		return &graphstore.StoreError{Op: "upsert_nodes", Retryable: !f.permanent, Err: errors.New("transient")}
	}

	return f.inner.UpsertNodes(ctx, nodes)
}

func (f *flakyStore) UpsertEdges(ctx context.Context, edges []graph.Edge) error {
	if f.failEdgeCalls.Add(-1) >= 0 {
		return &graphstore.StoreError{Op: "upsert_edges", Retryable: !f.permanent, Err: errors.New("transient")}
	}

	return f.inner.UpsertEdges(ctx, edges)
}

func (f *flakyStore) ApplyBatch(ctx context.Context, batch graph.BatchUpdate) error {
	if f.failBatchCalls.Add(-1) >= 0 {
		return &graphstore.StoreError{Op: "apply_batch", Retryable: !f.permanent, Err: errors.New("transient")}
	}

	return f.inner.ApplyBatch(ctx, batch)
}

func TestRetryingStore_RetriesTransientFailureUntilSuccess(t *testing.T) {
	t.Parallel()

	inner := graphstore.NewMemoryStore(graphstore.Config{})
	flaky := &flakyStore{inner: inner}
	flaky.failNodeCalls.Store(2)

	rs := graphstore.NewRetryingStore(flaky, graphstore.RetryConfig{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})

	err := rs.UpsertNodes(context.Background(), []graph.CodeNode{{ID: "n1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.NodeCount())
}

func TestRetryingStore_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	inner := graphstore.NewMemoryStore(graphstore.Config{})
	flaky := &flakyStore{inner: inner}
	flaky.failNodeCalls.Store(100) // always fails

	rs := graphstore.NewRetryingStore(flaky, graphstore.RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})

	err := rs.UpsertNodes(context.Background(), []graph.CodeNode{{ID: "n1"}})
	require.Error(t, err)
	assert.True(t, graphstore.Retryable(err))
}

func TestRetryingStore_PermanentErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	inner := graphstore.NewMemoryStore(graphstore.Config{})
	flaky := &flakyStore{inner: inner, permanent: true}
	flaky.failEdgeCalls.Store(100)

	rs := graphstore.NewRetryingStore(flaky, graphstore.RetryConfig{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})

	err := rs.UpsertEdges(context.Background(), []graph.Edge{{ID: "e1"}})
	require.Error(t, err)
	assert.False(t, graphstore.Retryable(err))
	assert.Equal(t, int32(99), flaky.failEdgeCalls.Load(), "permanent error must stop after the first attempt")
}

func TestRetryingStore_ApplyBatchRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	inner := graphstore.NewMemoryStore(graphstore.Config{})
	flaky := &flakyStore{inner: inner}
	flaky.failBatchCalls.Store(1)

	rs := graphstore.NewRetryingStore(flaky, graphstore.RetryConfig{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})

	err := rs.ApplyBatch(context.Background(), graph.BatchUpdate{JobID: "job1", Sequence: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), inner.LastCommittedSequence("job1"))
}
