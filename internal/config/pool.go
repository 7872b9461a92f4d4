package config

import (
	"time"

	"github.com/trybotster/synkd/internal/ptypool"
)

// PoolConfig translates the on-disk pool knobs into a ptypool.Config,
// filling in the fixed geometry/shell defaults ptypool.DefaultConfig()
// would otherwise choose.
func (c *Config) PoolConfig() ptypool.Config {
	base := ptypool.DefaultConfig()

	base.InitialPoolSize = c.Pool.InitialPoolSize
	base.MaxPoolSize = c.Pool.MaxPoolSize
	base.MaxActive = c.Pool.MaxActive
	base.RecycleEnabled = c.Pool.RecycleEnabled
	base.MaxPTYAge = time.Duration(c.Pool.MaxPTYAgeSeconds) * time.Second
	base.WarmupDelay = time.Duration(c.Pool.WarmupDelayMillis) * time.Millisecond
	base.WarmupTimeout = time.Duration(c.Pool.WarmupTimeoutSeconds) * time.Second
	base.RecycleReadyTimeout = time.Duration(c.Pool.RecycleReadyTimeoutSeconds) * time.Second

	if c.DefaultShell != "" {
		base.DefaultShell = c.DefaultShell
	}

	return base
}
