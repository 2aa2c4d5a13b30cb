package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".graphling"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for graphling settings.
const envPrefix = "GRAPHLING"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)
	viperCfg.SetDefault("pipeline.workers", resolveDefaultWorkers())

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

// resolveDefaultWorkers implements W = min(8, cpu_count): the worker pool
// never exceeds DefaultPipelineWorkers even on larger machines.
func resolveDefaultWorkers() int {
	if n := runtime.NumCPU(); n < DefaultPipelineWorkers {
		return n
	}

	return DefaultPipelineWorkers
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("pipeline.max_active_jobs", DefaultMaxActiveJobs)
	viperCfg.SetDefault("pipeline.batch_nodes", DefaultBatchNodes)
	viperCfg.SetDefault("pipeline.batch_edges", DefaultBatchEdges)
	viperCfg.SetDefault("pipeline.batch_interval", DefaultBatchInterval)
	viperCfg.SetDefault("pipeline.max_retries", DefaultMaxRetries)
	viperCfg.SetDefault("pipeline.max_file_bytes", DefaultMaxFileBytes)

	viperCfg.SetDefault("lsp.request_timeout", DefaultLSPRequestTimeout)
	viperCfg.SetDefault("lsp.max_respawn", DefaultLSPMaxRespawn)
	viperCfg.SetDefault("lsp.respawn_window", DefaultLSPRespawnWindow)
	viperCfg.SetDefault("lsp.pool_size", DefaultLSPPoolSize)

	viperCfg.SetDefault("broker.ring_size", DefaultBrokerRingSize)
	viperCfg.SetDefault("broker.subscriber_buffer", DefaultBrokerSubscriberBuffer)

	viperCfg.SetDefault("checkpoint.enabled", DefaultCheckpointEnabled)
	viperCfg.SetDefault("checkpoint.dir", DefaultCheckpointDir)
	viperCfg.SetDefault("checkpoint.resume", DefaultCheckpointResume)
	viperCfg.SetDefault("checkpoint.clear_prev", DefaultCheckpointClearPrev)
}
