package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// CacheConfig defines settings for the availability cache.  When Enabled is
// false or no Redis client is configured, listings are read straight from
// the store.  Entries are also invalidated whenever a booking changes a
// slot counter, so TTL only bounds staleness from writes made elsewhere.
type CacheConfig struct {
	Enabled bool          `env:"CACHE_ENABLED" envDefault:"true"`
	TTL     time.Duration `env:"CACHE_TTL" envDefault:"30s"`
	Prefix  string        `env:"CACHE_PREFIX" envDefault:"cache"`
}

// LoadCacheConfig parses CACHE_*.
func LoadCacheConfig() (CacheConfig, error) {
	var cc CacheConfig
	if err := env.Parse(&cc); err != nil {
		return CacheConfig{}, err
	}
	if cc.TTL <= 0 {
		cc.TTL = time.Second
	}
	return cc, nil
}
