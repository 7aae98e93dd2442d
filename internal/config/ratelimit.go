package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// RateLimitConfig tunes the Redis token bucket applied to credential and
// rating-write endpoints.
type RateLimitConfig struct {
	Enabled        bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	Capacity       int           `envconfig:"RATE_LIMIT_CAPACITY" default:"60"`
	RefillTokens   int           `envconfig:"RATE_LIMIT_REFILL_TOKENS" default:"1"`
	RefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`
	TTL            time.Duration `envconfig:"RATE_LIMIT_TTL" default:"10m"`
	KeyStrategy    string        `envconfig:"RATE_LIMIT_KEY_STRATEGY" default:"ip_user_route"`
	Prefix         string        `envconfig:"RATE_LIMIT_PREFIX" default:"rl"`
	Debug          bool          `envconfig:"RATE_LIMIT_DEBUG" default:"false"`
}

func LoadRateLimitConfig() (RateLimitConfig, error) {
	var def RateLimitConfig
	if err := envconfig.Process("", &def); err != nil {
		return RateLimitConfig{}, err
	}
	def.normalize()
	return def, nil
}

func (c *RateLimitConfig) normalize() {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	minTTL := 5 * c.RefillInterval
	if c.TTL < minTTL {
		c.TTL = minTTL
	}
}
