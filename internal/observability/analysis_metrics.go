package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricFilesTotal      = "graphling.analysis.files.total"
	metricPassesTotal     = "graphling.analysis.passes.total"
	metricPassDuration    = "graphling.analysis.pass.duration.seconds"
	metricLSPRequestsHits = "graphling.analysis.lsp_requests.total"
	metricLSPFailuresHits = "graphling.analysis.lsp_failures.total"

	attrLanguage = "language"
)

// AnalysisMetrics holds OTel instruments for analysis-specific metrics.
type AnalysisMetrics struct {
	filesTotal    metric.Int64Counter
	passesTotal   metric.Int64Counter
	passDuration  metric.Float64Histogram
	lspRequests   metric.Int64Counter
	lspFailures   metric.Int64Counter
}

// AnalysisStats holds the statistics for a single job run, decoupled from
// orchestrator types.
type AnalysisStats struct {
	FilesProcessed int64
	Passes         int
	PassDurations  []time.Duration
	LSPRequests    map[string]int64 // keyed by language
	LSPFailures    map[string]int64 // keyed by language
}

// NewAnalysisMetrics creates analysis metric instruments from the given meter.
func NewAnalysisMetrics(mt metric.Meter) (*AnalysisMetrics, error) {
	b := newMetricBuilder(mt)

	am := &AnalysisMetrics{
		filesTotal:   b.counter(metricFilesTotal, "Total files analyzed", "{file}"),
		passesTotal:  b.counter(metricPassesTotal, "Total analysis passes completed", "{pass}"),
		passDuration: b.histogram(metricPassDuration, "Per-pass processing duration in seconds", "s", durationBucketBoundaries...),
		lspRequests:  b.counter(metricLSPRequestsHits, "LSP requests issued by language", "{request}"),
		lspFailures:  b.counter(metricLSPFailuresHits, "LSP requests that failed by language", "{request}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return am, nil
}

// RecordRun records analysis statistics for a completed job run.
// Safe to call on a nil receiver (no-op).
func (am *AnalysisMetrics) RecordRun(ctx context.Context, stats AnalysisStats) {
	if am == nil {
		return
	}

	am.filesTotal.Add(ctx, stats.FilesProcessed)
	am.passesTotal.Add(ctx, int64(stats.Passes))

	for _, d := range stats.PassDurations {
		am.passDuration.Record(ctx, d.Seconds())
	}

	for lang, n := range stats.LSPRequests {
		am.lspRequests.Add(ctx, n, metric.WithAttributes(attribute.String(attrLanguage, lang)))
	}

	for lang, n := range stats.LSPFailures {
		am.lspFailures.Add(ctx, n, metric.WithAttributes(attribute.String(attrLanguage, lang)))
	}
}
