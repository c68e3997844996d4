package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// RateLimitConfig configures the fixed-window request limiter.  Each key
// may issue Limit requests per Window.  KeyStrategy picks what identifies a
// caller: "ip", "user" or "ip_user_route".
type RateLimitConfig struct {
	Enabled     bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Limit       int64         `env:"RATE_LIMIT_LIMIT" envDefault:"60"`
	Window      time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	KeyStrategy string        `env:"RATE_LIMIT_KEY_STRATEGY" envDefault:"ip_user_route"`
	Prefix      string        `env:"RATE_LIMIT_PREFIX" envDefault:"rl"`
}

// LoadRateLimitConfig parses RATE_LIMIT_* and clamps nonsensical values.
func LoadRateLimitConfig() (RateLimitConfig, error) {
	var rl RateLimitConfig
	if err := env.Parse(&rl); err != nil {
		return RateLimitConfig{}, err
	}
	if rl.Limit < 1 {
		rl.Limit = 1
	}
	if rl.Window < time.Second {
		rl.Window = time.Second
	}
	return rl, nil
}
