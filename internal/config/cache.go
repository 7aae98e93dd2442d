package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// CacheConfig defines settings for the response cache middleware.
// When Enabled is false or no Redis client is configured, caching will be disabled.
// Methods lists the HTTP methods to cache (e.g. GET, HEAD).  TTL defines the
// lifetime of cache entries.  KeyStrategy determines which parts of the request
// contribute to the cache key.  Prefix and MaxBodyBytes allow control over
// namespacing and the maximum size of responses to cache.
type CacheConfig struct {
	Enabled      bool          `envconfig:"CACHE_ENABLED" default:"true"`
	RawMethods   string        `envconfig:"CACHE_METHODS" default:"GET"`
	TTL          time.Duration `envconfig:"CACHE_TTL" default:"30s"`
	KeyStrategy  string        `envconfig:"CACHE_KEY_STRATEGY" default:"route_query"`
	Prefix       string        `envconfig:"CACHE_PREFIX" default:"cache"`
	MaxBodyBytes int           `envconfig:"CACHE_MAX_BODY_BYTES" default:"1048576"`

	Methods map[string]bool `ignored:"true"`
}

// LoadCacheConfig reads environment variables to build a CacheConfig.  Defaults
// are used when variables are not set.  All methods are upper-cased.
func LoadCacheConfig() (CacheConfig, error) {
	var c CacheConfig
	if err := envconfig.Process("", &c); err != nil {
		return CacheConfig{}, err
	}
	c.Methods = parseMethods(c.RawMethods)
	if c.TTL <= 0 {
		c.TTL = time.Second
	}
	return c, nil
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
