package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/graphling/graphling/internal/observability"
)

func setupAnalysisMeter(t *testing.T) (*observability.AnalysisMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := mp.Meter("test")

	am, err := observability.NewAnalysisMetrics(meter)
	require.NoError(t, err)

	return am, reader
}

func TestNewAnalysisMetrics(t *testing.T) {
	t.Parallel()

	am, _ := setupAnalysisMeter(t)
	assert.NotNil(t, am)
}

func TestAnalysisMetrics_RecordRun(t *testing.T) {
	t.Parallel()

	am, reader := setupAnalysisMeter(t)
	ctx := context.Background()

	am.RecordRun(ctx, observability.AnalysisStats{
		FilesProcessed: 100,
		Passes:         2,
		PassDurations:  []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
		LSPRequests:    map[string]int64{"go": 50, "python": 10},
		LSPFailures:    map[string]int64{"go": 1},
	})

	rm := collectMetrics(t, reader)

	files := findMetric(rm, "graphling.analysis.files.total")
	require.NotNil(t, files, "files counter should exist")

	passes := findMetric(rm, "graphling.analysis.passes.total")
	require.NotNil(t, passes, "passes counter should exist")

	passDur := findMetric(rm, "graphling.analysis.pass.duration.seconds")
	require.NotNil(t, passDur, "pass duration histogram should exist")

	// Verify histogram has data points with correct count.
	hist, ok := passDur.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "expected Histogram data type")
	require.NotEmpty(t, hist.DataPoints)
	assert.Equal(t, uint64(3), hist.DataPoints[0].Count, "should have 3 duration recordings")

	requests := findMetric(rm, "graphling.analysis.lsp_requests.total")
	require.NotNil(t, requests, "lsp requests counter should exist")

	failures := findMetric(rm, "graphling.analysis.lsp_failures.total")
	require.NotNil(t, failures, "lsp failures counter should exist")
}

func TestAnalysisMetrics_RecordRun_NilReceiver(t *testing.T) {
	t.Parallel()

	var am *observability.AnalysisMetrics

	// Should not panic.
	am.RecordRun(context.Background(), observability.AnalysisStats{
		FilesProcessed: 10,
		Passes:         1,
	})
}
