package replica

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
)

const (
	// DefaultFlushPeriod is how often lifecycle batches are transmitted (4 Hz).
	DefaultFlushPeriod = 250 * time.Millisecond

	// DefaultPathCacheSize is how many split paths a Store remembers.
	DefaultPathCacheSize = 1024
)

// Config holds the parameters of a Server or Client.
type Config struct {
	// FlushPeriod is the cadence of lifecycle batch transmission.
	// Default: 250ms
	FlushPeriod time.Duration

	// PathCacheSize is the number of split paths memoized per Store.
	// 0 disables the cache.
	// Default: 1024
	PathCacheSize int

	// Logger receives diagnostics for inert operations. Default: no-op.
	Logger *zap.Logger

	// Metrics, when set, is updated as operations flow.
	Metrics *Metrics
}

// DefaultConfig returns a config with the reference flush cadence.
func DefaultConfig() Config {
	return Config{
		FlushPeriod:   DefaultFlushPeriod,
		PathCacheSize: DefaultPathCacheSize,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by REPLICA_FLUSH_PERIOD and
// REPLICA_PATH_CACHE_SIZE.
func ConfigFromEnv() (Config, error) {
	var e struct {
		FlushPeriod   time.Duration `env:"REPLICA_FLUSH_PERIOD" envDefault:"250ms"`
		PathCacheSize int           `env:"REPLICA_PATH_CACHE_SIZE" envDefault:"1024"`
	}
	if err := env.Parse(&e); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg := DefaultConfig()
	cfg.FlushPeriod = e.FlushPeriod
	cfg.PathCacheSize = e.PathCacheSize
	return cfg, nil
}

// validate ensures config values are usable.
func (c *Config) validate() {
	if c.FlushPeriod <= 0 {
		c.FlushPeriod = DefaultFlushPeriod
	}
	if c.PathCacheSize < 0 {
		c.PathCacheSize = 0
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
