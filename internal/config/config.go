package config

import "errors"

// Config is the top-level configuration struct for graphling.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	LSP        LSPConfig        `mapstructure:"lsp"`
	Broker     BrokerConfig     `mapstructure:"broker"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Languages  []LanguageServer `mapstructure:"languages"`
}

// PipelineConfig holds orchestrator resource and batching knobs.
type PipelineConfig struct {
	Workers       int    `mapstructure:"workers"`
	MaxActiveJobs int    `mapstructure:"max_active_jobs"`
	BatchNodes    int    `mapstructure:"batch_nodes"`
	BatchEdges    int    `mapstructure:"batch_edges"`
	BatchInterval string `mapstructure:"batch_interval"`
	MaxRetries    int    `mapstructure:"max_retries"`
	MaxFileBytes  int64  `mapstructure:"max_file_bytes"`
}

// LSPConfig holds LSP client/pool resource knobs.
type LSPConfig struct {
	RequestTimeout string `mapstructure:"request_timeout"`
	MaxRespawn     int    `mapstructure:"max_respawn"`
	RespawnWindow  string `mapstructure:"respawn_window"`
	PoolSize       int    `mapstructure:"pool_size"`
}

// BrokerConfig holds subscription broker knobs.
type BrokerConfig struct {
	RingSize         int `mapstructure:"ring_size"`
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

// CheckpointConfig holds checkpoint settings.
type CheckpointConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Dir       string `mapstructure:"dir"`
	Resume    bool   `mapstructure:"resume"`
	ClearPrev bool   `mapstructure:"clear_prev"`
}

// LanguageServer describes how to launch the LSP server for one language.
type LanguageServer struct {
	Language   string            `mapstructure:"language"`
	Executable string            `mapstructure:"executable"`
	Args       []string          `mapstructure:"args"`
	Env        map[string]string `mapstructure:"env"`
	InitParams map[string]any    `mapstructure:"init_params"`
}

// Sentinel errors for configuration validation.
var (
	// ErrInvalidWorkers indicates the workers value is negative.
	ErrInvalidWorkers = errors.New("pipeline.workers must be non-negative")
	// ErrInvalidMaxActiveJobs indicates the max active jobs value is negative.
	ErrInvalidMaxActiveJobs = errors.New("pipeline.max_active_jobs must be non-negative")
	// ErrInvalidBatchNodes indicates the batch node threshold is not positive.
	ErrInvalidBatchNodes = errors.New("pipeline.batch_nodes must be positive")
	// ErrInvalidBatchEdges indicates the batch edge threshold is not positive.
	ErrInvalidBatchEdges = errors.New("pipeline.batch_edges must be positive")
	// ErrInvalidMaxRetries indicates the max retries value is negative.
	ErrInvalidMaxRetries = errors.New("pipeline.max_retries must be non-negative")
	// ErrInvalidMaxFileBytes indicates the max file size is not positive.
	ErrInvalidMaxFileBytes = errors.New("pipeline.max_file_bytes must be positive")
	// ErrInvalidMaxRespawn indicates the max respawn count is negative.
	ErrInvalidMaxRespawn = errors.New("lsp.max_respawn must be non-negative")
	// ErrInvalidPoolSize indicates the LSP pool size is not positive.
	ErrInvalidPoolSize = errors.New("lsp.pool_size must be positive")
	// ErrInvalidRingSize indicates the broker ring size is not positive.
	ErrInvalidRingSize = errors.New("broker.ring_size must be positive")
	// ErrInvalidSubscriberBuffer indicates the subscriber buffer is not positive.
	ErrInvalidSubscriberBuffer = errors.New("broker.subscriber_buffer must be positive")
)

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	pipelineErr := c.validatePipeline()
	if pipelineErr != nil {
		return pipelineErr
	}

	lspErr := c.validateLSP()
	if lspErr != nil {
		return lspErr
	}

	return c.validateBroker()
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers < 0 {
		return ErrInvalidWorkers
	}

	if c.Pipeline.MaxActiveJobs < 0 {
		return ErrInvalidMaxActiveJobs
	}

	if c.Pipeline.BatchNodes <= 0 {
		return ErrInvalidBatchNodes
	}

	if c.Pipeline.BatchEdges <= 0 {
		return ErrInvalidBatchEdges
	}

	if c.Pipeline.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}

	if c.Pipeline.MaxFileBytes <= 0 {
		return ErrInvalidMaxFileBytes
	}

	return nil
}

func (c *Config) validateLSP() error {
	if c.LSP.MaxRespawn < 0 {
		return ErrInvalidMaxRespawn
	}

	if c.LSP.PoolSize <= 0 {
		return ErrInvalidPoolSize
	}

	return nil
}

func (c *Config) validateBroker() error {
	if c.Broker.RingSize <= 0 {
		return ErrInvalidRingSize
	}

	if c.Broker.SubscriberBuffer <= 0 {
		return ErrInvalidSubscriberBuffer
	}

	return nil
}
