package config_test

import (
	"testing"

	"github.com/graphling/graphling/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() config.Config {
	return config.Config{
		Pipeline: config.PipelineConfig{
			Workers:       4,
			MaxActiveJobs: 8,
			BatchNodes:    500,
			BatchEdges:    500,
			MaxRetries:    5,
			MaxFileBytes:  1 << 20,
		},
		LSP: config.LSPConfig{
			PoolSize:   2,
			MaxRespawn: 3,
		},
		Broker: config.BrokerConfig{
			RingSize:         256,
			SubscriberBuffer: 64,
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{
			name:    "negative workers",
			mutate:  func(c *config.Config) { c.Pipeline.Workers = -1 },
			wantErr: config.ErrInvalidWorkers,
		},
		{
			name:    "negative max active jobs",
			mutate:  func(c *config.Config) { c.Pipeline.MaxActiveJobs = -1 },
			wantErr: config.ErrInvalidMaxActiveJobs,
		},
		{
			name:    "zero batch nodes",
			mutate:  func(c *config.Config) { c.Pipeline.BatchNodes = 0 },
			wantErr: config.ErrInvalidBatchNodes,
		},
		{
			name:    "zero batch edges",
			mutate:  func(c *config.Config) { c.Pipeline.BatchEdges = 0 },
			wantErr: config.ErrInvalidBatchEdges,
		},
		{
			name:    "negative max retries",
			mutate:  func(c *config.Config) { c.Pipeline.MaxRetries = -1 },
			wantErr: config.ErrInvalidMaxRetries,
		},
		{
			name:    "zero max file bytes",
			mutate:  func(c *config.Config) { c.Pipeline.MaxFileBytes = 0 },
			wantErr: config.ErrInvalidMaxFileBytes,
		},
		{
			name:    "negative max respawn",
			mutate:  func(c *config.Config) { c.LSP.MaxRespawn = -1 },
			wantErr: config.ErrInvalidMaxRespawn,
		},
		{
			name:    "zero pool size",
			mutate:  func(c *config.Config) { c.LSP.PoolSize = 0 },
			wantErr: config.ErrInvalidPoolSize,
		},
		{
			name:    "zero ring size",
			mutate:  func(c *config.Config) { c.Broker.RingSize = 0 },
			wantErr: config.ErrInvalidRingSize,
		},
		{
			name:    "zero subscriber buffer",
			mutate:  func(c *config.Config) { c.Broker.SubscriberBuffer = 0 },
			wantErr: config.ErrInvalidSubscriberBuffer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestApplyToLSPOptions_SkipsZero(t *testing.T) {
	cfg := config.Config{LSP: config.LSPConfig{PoolSize: 3}}
	opts := map[string]any{}

	cfg.ApplyToLSPOptions(opts)

	assert.Equal(t, 3, opts["PoolSize"])
	assert.NotContains(t, opts, "MaxRespawn")
	assert.NotContains(t, opts, "RequestTimeout")
}
