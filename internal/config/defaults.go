package config

// Default configuration values, applied by LoadConfig before file/env
// overrides. These mirror the documented configuration knobs: workers
// defaults to min(8, NumCPU) and is resolved at load time, not here.
const (
	DefaultPipelineWorkers = 8
	DefaultMaxActiveJobs   = 4
	DefaultBatchNodes      = 200
	DefaultBatchEdges      = 400
	DefaultBatchInterval   = "500ms"
	DefaultMaxRetries      = 3
	DefaultMaxFileBytes    = int64(2 << 20) // 2 MiB

	DefaultLSPRequestTimeout = "30s"
	DefaultLSPMaxRespawn     = 3
	DefaultLSPRespawnWindow  = "5m"
	DefaultLSPPoolSize       = 1

	DefaultBrokerRingSize         = 256
	DefaultBrokerSubscriberBuffer = 64

	DefaultCheckpointEnabled   = true
	DefaultCheckpointDir       = ""
	DefaultCheckpointResume    = true
	DefaultCheckpointClearPrev = false
)
