package observability_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphling/graphling/internal/observability"
)

func TestDiagnosticsServer_ServesHealthReadyAndMetrics(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	red, err := observability.NewREDMetrics(providers.Meter)
	require.NoError(t, err)

	red.RecordRequest(context.Background(), "start_analysis", "ok", time.Millisecond)

	diag, err := observability.NewDiagnosticsServer("127.0.0.1:0", providers.Meter, providers.PrometheusRegistry)
	require.NoError(t, err)

	t.Cleanup(func() { _ = diag.Close() })

	base := "http://" + diag.Addr()

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(base + "/readyz")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	resp3, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	defer resp3.Body.Close()

	body, err := io.ReadAll(resp3.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "graphling_requests_total")
}

func TestDiagnosticsServer_ReadyzReflectsFailingCheck(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()

	providers, err := observability.Init(cfg)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, providers.Shutdown(context.Background())) })

	failing := func(_ context.Context) error { return errors.New("language server unavailable") }

	diag, err := observability.NewDiagnosticsServer("127.0.0.1:0", nil, providers.PrometheusRegistry, failing)
	require.NoError(t, err)

	t.Cleanup(func() { _ = diag.Close() })

	resp, err := http.Get("http://" + diag.Addr() + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
