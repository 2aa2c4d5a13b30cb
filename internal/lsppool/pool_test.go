package lsppool_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphling/graphling/internal/lspclient"
	"github.com/graphling/graphling/internal/lsppool"
)

// initHandler answers "initialize" with an empty result and everything else
// (including "initialized", "shutdown") with nil, like a cooperative fake
// language server.
func initHandler() jsonrpc2.Handler {
	return jsonrpc2.HandlerWithError(func(_ context.Context, _ *jsonrpc2.Conn, _ *jsonrpc2.Request) (any, error) {
		return map[string]any{}, nil
	})
}

func newTestPool(t *testing.T, cfg lsppool.Config, languages ...string) *lsppool.Pool {
	t.Helper()

	specs := make(map[string]lsppool.LaunchSpec, len(languages))
	for _, lang := range languages {
		specs[lang] = lsppool.LaunchSpec{Executable: "fake-" + lang}
	}

	pool := lsppool.New(cfg, specs, nil)
	pool.SetSpawnFuncForTesting(func(ctx context.Context, spec lsppool.LaunchSpec) (*lspclient.Client, error) {
		client, server := lspclient.DialInMemory(nil, initHandler())
		t.Cleanup(func() { _ = client.Close(); _ = server.Close() })

		return client, nil
	})

	return pool
}

func TestPool_AcquireSpawnsOnFirstDemand(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, lsppool.Config{}, "go")

	client, release, err := pool.Acquire(context.Background(), "go")
	require.NoError(t, err)
	defer release()

	assert.True(t, client.Alive())
}

func TestPool_AcquireUnknownLanguage(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, lsppool.Config{}, "go")

	_, _, err := pool.Acquire(context.Background(), "cobol")
	assert.ErrorIs(t, err, lsppool.ErrUnavailable)
}

func TestPool_ReusesHotClientWithinLimit(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, lsppool.Config{MaxServersPerLang: 1}, "go")

	client1, release1, err := pool.Acquire(context.Background(), "go")
	require.NoError(t, err)
	release1()

	client2, release2, err := pool.Acquire(context.Background(), "go")
	require.NoError(t, err)
	defer release2()

	assert.Same(t, client1, client2)
}

func TestPool_SecondAcquireBlocksUntilFirstReleases(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, lsppool.Config{MaxServersPerLang: 1}, "go")

	_, release1, err := pool.Acquire(context.Background(), "go")
	require.NoError(t, err)

	acquired := make(chan struct{})

	go func() {
		_, release2, err := pool.Acquire(context.Background(), "go")
		require.NoError(t, err)
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire returned before first release")
	case <-time.After(50 * time.Millisecond):
	}

	release1()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second acquire never unblocked after release")
	}
}

func TestPool_RespawnsDeadClient(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, lsppool.Config{MaxServersPerLang: 1, MaxRespawn: 3}, "go")

	client1, release1, err := pool.Acquire(context.Background(), "go")
	require.NoError(t, err)
	release1()

	require.NoError(t, client1.Close()) // Simulate the server dying.

	client2, release2, err := pool.Acquire(context.Background(), "go")
	require.NoError(t, err)
	defer release2()

	assert.NotSame(t, client1, client2)
	assert.True(t, client2.Alive())
}

func TestPool_DeclaresLanguageUnavailableAfterRespawnBudgetExhausted(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, lsppool.Config{MaxServersPerLang: 1, MaxRespawn: 2, RespawnWindow: time.Minute}, "go")

	// The first Acquire is the initial spawn (not a respawn); each
	// subsequent Acquire detects the prior client dead and respawns, so two
	// respawns (MaxRespawn) happen across the first three calls.
	for i := 0; i < 3; i++ {
		client, release, err := pool.Acquire(context.Background(), "go")
		require.NoError(t, err)
		release()
		require.NoError(t, client.Close())
	}

	_, _, err := pool.Acquire(context.Background(), "go")
	require.ErrorIs(t, err, lsppool.ErrUnavailable)
	assert.True(t, pool.Unavailable("go"))
}

func TestPool_ShutdownRunsLSPSequenceOnLiveClients(t *testing.T) {
	t.Parallel()

	calls := make(chan string, 2)

	handler := jsonrpc2.HandlerWithError(func(_ context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
		switch req.Method {
		case "shutdown", "exit":
			calls <- req.Method

			return nil, nil
		default:
			return map[string]any{}, nil
		}
	})

	var server *jsonrpc2.Conn

	pool := lsppool.New(lsppool.Config{}, map[string]lsppool.LaunchSpec{"go": {Executable: "fake"}}, nil)
	pool.SetSpawnFuncForTesting(func(_ context.Context, _ lsppool.LaunchSpec) (*lspclient.Client, error) {
		var client *lspclient.Client
		client, server = lspclient.DialInMemory(nil, handler)

		return client, nil
	})

	_, release, err := pool.Acquire(context.Background(), "go")
	require.NoError(t, err)
	release()

	pool.Shutdown(context.Background())

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case method := <-calls:
			seen[method] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for shutdown+exit, saw: %v", seen)
		}
	}

	assert.True(t, seen["shutdown"])
	assert.True(t, seen["exit"])

	_ = server.Close()
}

func TestPool_ErrUnavailableIsWrapped(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, lsppool.Config{}, "go")

	_, _, err := pool.Acquire(context.Background(), "rust")
	assert.True(t, errors.Is(err, lsppool.ErrUnavailable))
}
