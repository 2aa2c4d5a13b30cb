// Package commands provides CLI command implementations for graphling.
package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/graphling/graphling/internal/broker"
	"github.com/graphling/graphling/internal/config"
	"github.com/graphling/graphling/internal/graphstore"
	"github.com/graphling/graphling/internal/jobregistry"
	"github.com/graphling/graphling/internal/lsppool"
	"github.com/graphling/graphling/internal/orchestrator"
)

func buildBroker(cfg *config.Config) *broker.Broker {
	return broker.New(broker.Config{
		RingSize:  cfg.Broker.RingSize,
		SubBuffer: cfg.Broker.SubscriberBuffer,
	})
}

// buildLaunchSpecs converts the configured per-language server launch
// descriptors into the shape the LSP Server Pool wants, JSON round-tripping
// each language's free-form init_params into a typed InitializeParams.
func buildLaunchSpecs(langs []config.LanguageServer) (map[string]lsppool.LaunchSpec, error) {
	specs := make(map[string]lsppool.LaunchSpec, len(langs))

	for _, l := range langs {
		env := make([]string, 0, len(l.Env))
		for k, v := range l.Env {
			env = append(env, k+"="+v)
		}

		spec := lsppool.LaunchSpec{
			Executable: l.Executable,
			Args:       l.Args,
			Env:        env,
		}

		if len(l.InitParams) > 0 {
			raw, err := json.Marshal(l.InitParams)
			if err != nil {
				return nil, fmt.Errorf("marshal init_params for %s: %w", l.Language, err)
			}

			var params protocol.InitializeParams
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, fmt.Errorf("unmarshal init_params for %s: %w", l.Language, err)
			}

			spec.InitParams = &params
		}

		specs[l.Language] = spec
	}

	return specs, nil
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}

	return d
}

// buildRegistry wires a Job Registry from loaded configuration: an LSP
// pool spanning every configured language, an in-memory graph store
// wrapped in retries, and the orchestrator defaults every job inherits.
func buildRegistry(cfg *config.Config, checkpointDir string, logger *slog.Logger) (*jobregistry.Registry, error) {
	specs, err := buildLaunchSpecs(cfg.Languages)
	if err != nil {
		return nil, err
	}

	pool := lsppool.New(lsppool.Config{
		MaxServersPerLang: cfg.LSP.PoolSize,
		MaxRespawn:        cfg.LSP.MaxRespawn,
		RespawnWindow:     parseDurationOr(cfg.LSP.RespawnWindow, 0),
	}, specs, nil)

	store := graphstore.NewRetryingStore(graphstore.NewMemoryStore(graphstore.Config{}), graphstore.RetryConfig{})

	b := buildBroker(cfg)

	registry := jobregistry.New(jobregistry.Deps{
		Pool:              pool,
		Store:             store,
		Broker:            b,
		CheckpointBaseDir: checkpointDir,
		Logger:            logger,
	}, cfg.Pipeline.MaxActiveJobs, orchestrator.Config{
		Workers:           cfg.Pipeline.Workers,
		BatchNodes:        cfg.Pipeline.BatchNodes,
		BatchEdges:        cfg.Pipeline.BatchEdges,
		BatchInterval:     parseDurationOr(cfg.Pipeline.BatchInterval, 0),
		MaxRetries:        cfg.Pipeline.MaxRetries,
		MaxFileBytes:      cfg.Pipeline.MaxFileBytes,
		LSPRequestTimeout: parseDurationOr(cfg.LSP.RequestTimeout, 0),
	})

	return registry, nil
}
