package graphstore

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/graphling/graphling/pkg/graph"
)

// RetryConfig tunes the exponential backoff applied around a wrapped
// Store's calls. Zero values fall back to the documented defaults.
type RetryConfig struct {
	// MaxAttempts caps the total attempts, the first call included, made
	// for an operation failing with a retryable StoreError. Default 5.
	MaxAttempts uint
	// InitialInterval is the first retry's backoff. Default 100ms.
	InitialInterval time.Duration
	// MaxInterval caps backoff growth. Default 5s.
	MaxInterval time.Duration
}

const (
	defaultMaxAttempts     = 5
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}

	if c.InitialInterval <= 0 {
		c.InitialInterval = defaultInitialInterval
	}

	if c.MaxInterval <= 0 {
		c.MaxInterval = defaultMaxInterval
	}

	return c
}

// RetryingStore decorates a Store with exponential-backoff retries around
// calls that fail with a retryable StoreError. Non-retryable and non-
// StoreError failures are returned immediately — idempotent upsert makes
// a retried write safe, so only the classification of the underlying
// error decides whether a retry happens, never the operation itself.
type RetryingStore struct {
	inner Store
	cfg   RetryConfig
}

// NewRetryingStore wraps inner with retry behavior per cfg.
func NewRetryingStore(inner Store, cfg RetryConfig) *RetryingStore {
	return &RetryingStore{inner: inner, cfg: cfg.withDefaults()}
}

func (s *RetryingStore) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval
	b.MaxInterval = s.cfg.MaxInterval

	return b
}

func withRetryClassification(err error) error {
	if err == nil {
		return nil
	}

	if !Retryable(err) {
		return backoff.Permanent(err)
	}

	return err
}

// UpsertNodes implements Store.
func (s *RetryingStore) UpsertNodes(ctx context.Context, nodes []graph.CodeNode) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, withRetryClassification(s.inner.UpsertNodes(ctx, nodes))
	}, backoff.WithBackOff(s.backOff()), backoff.WithMaxTries(s.cfg.MaxAttempts))

	return err
}

// UpsertEdges implements Store.
func (s *RetryingStore) UpsertEdges(ctx context.Context, edges []graph.Edge) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, withRetryClassification(s.inner.UpsertEdges(ctx, edges))
	}, backoff.WithBackOff(s.backOff()), backoff.WithMaxTries(s.cfg.MaxAttempts))

	return err
}

// ApplyBatch implements Store.
func (s *RetryingStore) ApplyBatch(ctx context.Context, batch graph.BatchUpdate) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, withRetryClassification(s.inner.ApplyBatch(ctx, batch))
	}, backoff.WithBackOff(s.backOff()), backoff.WithMaxTries(s.cfg.MaxAttempts))

	return err
}
