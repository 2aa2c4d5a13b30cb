package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCacheHits   = "graphling.cache.hits"
	metricCacheMisses = "graphling.cache.misses"
)

// CacheStatsProvider exposes cache hit/miss counters for OTel export.
type CacheStatsProvider interface {
	CacheHits() int64
	CacheMisses() int64
}

// namedCacheProvider pairs a cache label (e.g. "langdetect", "lsppool") with
// its stats source.
type namedCacheProvider struct {
	name     string
	provider CacheStatsProvider
}

// RegisterCacheMetrics registers observable gauges that report cache hit/miss
// counters from one or more named cache providers (language detector
// lookups, LSP pool connection reuse, …). Nil providers are skipped.
func RegisterCacheMetrics(mt metric.Meter, named map[string]CacheStatsProvider) error {
	providers := make([]namedCacheProvider, 0, len(named))

	for name, provider := range named {
		if provider != nil {
			providers = append(providers, namedCacheProvider{name, provider})
		}
	}

	if len(providers) == 0 {
		return nil
	}

	_, err := mt.Int64ObservableGauge(metricCacheHits,
		metric.WithDescription("Cache hit count"),
		metric.WithUnit("{hit}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for _, p := range providers {
				o.Observe(p.provider.CacheHits(), metric.WithAttributes(
					attribute.String("cache", p.name),
				))
			}

			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", metricCacheHits, err)
	}

	_, err = mt.Int64ObservableGauge(metricCacheMisses,
		metric.WithDescription("Cache miss count"),
		metric.WithUnit("{miss}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for _, p := range providers {
				o.Observe(p.provider.CacheMisses(), metric.WithAttributes(
					attribute.String("cache", p.name),
				))
			}

			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", metricCacheMisses, err)
	}

	return nil
}
