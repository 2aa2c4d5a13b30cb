package config

// positive constrains types eligible for skip-on-zero override application.
type positive interface {
	~int | ~int64 | ~float32 | ~float64
}

// applyPositive sets opts[key] = value when value is positive.
// Zero values are skipped, allowing the caller to fall back to its built-in default.
func applyPositive[T positive](opts map[string]any, key string, value T) {
	if value > 0 {
		opts[key] = value
	}
}

// applyNonEmpty sets opts[key] = value when value is non-empty.
func applyNonEmpty(opts map[string]any, key, value string) {
	if value != "" {
		opts[key] = value
	}
}

// ApplyToLSPOptions merges the pool-wide LSP settings from Config into an
// options map passed to the LSP Server Pool. Only non-zero values
// override the pool's built-in defaults; zero values mean "use default".
func (c *Config) ApplyToLSPOptions(opts map[string]any) {
	applyPositive(opts, "PoolSize", c.LSP.PoolSize)
	applyPositive(opts, "MaxRespawn", c.LSP.MaxRespawn)
	applyNonEmpty(opts, "RequestTimeout", c.LSP.RequestTimeout)
	applyNonEmpty(opts, "RespawnWindow", c.LSP.RespawnWindow)
}
