package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphling/graphling/internal/queue"
)

func popNow(t *testing.T, q *queue.Queue) *queue.Item {
	t.Helper()

	it, err := q.PopBlockingWithDeadline(context.Background(), time.Now().Add(time.Second))
	require.NoError(t, err)

	return it
}

func TestQueue_PushPop_SingleItem(t *testing.T) {
	t.Parallel()

	q := queue.New()
	require.NoError(t, q.Push(&queue.Item{Path: "a.go", Size: 10, BasePriority: 2}))

	it := popNow(t, q)
	assert.Equal(t, "a.go", it.Path)
}

func TestQueue_OrdersByPriorityThenSizeThenInsertion(t *testing.T) {
	t.Parallel()

	q := queue.New()
	require.NoError(t, q.Push(&queue.Item{Path: "low-prio", Size: 1, BasePriority: 3}))
	require.NoError(t, q.Push(&queue.Item{Path: "big", Size: 100, BasePriority: 1}))
	require.NoError(t, q.Push(&queue.Item{Path: "small", Size: 10, BasePriority: 1}))
	require.NoError(t, q.Push(&queue.Item{Path: "first-at-prio-1-size-10", Size: 10, BasePriority: 1}))

	var order []string
	for range 4 {
		order = append(order, popNow(t, q).Path)
	}

	assert.Equal(t, []string{"small", "first-at-prio-1-size-10", "big", "low-prio"}, order)
}

func TestQueue_RetryLowersAdjustedPriorityButFloorsAtOne(t *testing.T) {
	t.Parallel()

	q := queue.New()
	require.NoError(t, q.Push(&queue.Item{Path: "fresh", Size: 10, BasePriority: 2, RetryCount: 0}))
	require.NoError(t, q.Push(&queue.Item{Path: "retried-hard", Size: 10, BasePriority: 2, RetryCount: 5}))

	// retried-hard's adjusted priority floors at 1, so it pops first even
	// though fresh was pushed earlier.
	assert.Equal(t, "retried-hard", popNow(t, q).Path)
	assert.Equal(t, "fresh", popNow(t, q).Path)
}

func TestQueue_Len(t *testing.T) {
	t.Parallel()

	q := queue.New()
	assert.Equal(t, 0, q.Len())

	require.NoError(t, q.Push(&queue.Item{Path: "a", BasePriority: 1}))
	require.NoError(t, q.Push(&queue.Item{Path: "b", BasePriority: 1}))
	assert.Equal(t, 2, q.Len())

	popNow(t, q)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_Remove(t *testing.T) {
	t.Parallel()

	q := queue.New()
	require.NoError(t, q.Push(&queue.Item{Path: "keep", BasePriority: 1}))
	require.NoError(t, q.Push(&queue.Item{Path: "drop", BasePriority: 1}))

	assert.True(t, q.Remove("drop"))
	assert.False(t, q.Remove("drop"))
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, "keep", popNow(t, q).Path)
}

func TestQueue_Drain(t *testing.T) {
	t.Parallel()

	q := queue.New()
	require.NoError(t, q.Push(&queue.Item{Path: "a", Size: 5, BasePriority: 1}))
	require.NoError(t, q.Push(&queue.Item{Path: "b", Size: 1, BasePriority: 1}))

	items := q.Drain()
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].Path)
	assert.Equal(t, "a", items[1].Path)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	t.Parallel()

	q := queue.New()

	resultCh := make(chan *queue.Item, 1)

	go func() {
		it, err := q.PopBlockingWithDeadline(context.Background(), time.Time{})
		assert.NoError(t, err)
		resultCh <- it
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(&queue.Item{Path: "arrives-late", BasePriority: 1}))

	select {
	case it := <-resultCh:
		assert.Equal(t, "arrives-late", it.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("pop did not unblock after push")
	}
}

func TestQueue_PopRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	q := queue.New()

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)

	go func() {
		_, err := q.PopBlockingWithDeadline(ctx, time.Time{})
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("pop did not unblock after context cancellation")
	}
}

func TestQueue_PopRespectsDeadline(t *testing.T) {
	t.Parallel()

	q := queue.New()

	start := time.Now()
	_, err := q.PopBlockingWithDeadline(context.Background(), start.Add(30*time.Millisecond))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestQueue_CloseWakesAllBlockedConsumers(t *testing.T) {
	t.Parallel()

	q := queue.New()

	const consumers = 5

	var wg sync.WaitGroup

	errs := make([]error, consumers)

	for i := range consumers {
		wg.Add(1)

		go func(idx int) {
			defer wg.Done()

			_, err := q.PopBlockingWithDeadline(context.Background(), time.Time{})
			errs[idx] = err
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not wake all blocked consumers")
	}

	for _, err := range errs {
		assert.ErrorIs(t, err, queue.ErrClosed)
	}
}

func TestQueue_PushAfterCloseFails(t *testing.T) {
	t.Parallel()

	q := queue.New()
	q.Close()

	err := q.Push(&queue.Item{Path: "too-late", BasePriority: 1})
	assert.ErrorIs(t, err, queue.ErrClosed)
}

func TestQueue_CloseDrainsExistingItemsBeforeErroring(t *testing.T) {
	t.Parallel()

	q := queue.New()
	require.NoError(t, q.Push(&queue.Item{Path: "already-queued", BasePriority: 1}))

	q.Close()

	it := popNow(t, q)
	assert.Equal(t, "already-queued", it.Path)

	_, err := q.PopBlockingWithDeadline(context.Background(), time.Time{})
	assert.ErrorIs(t, err, queue.ErrClosed)
}
