package config

// This file defines a Redis client constructor for the application.  Redis is
// used for distributed rate limiting and HTTP response caching of public
// store reads.  If connection fails during startup, the function returns nil
// and callers degrade gracefully by disabling caching and rate limiting.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings.
//   REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//   REDIS_ADDR – host:port shorthand, used when host/port are not both set
//   REDIS_PASSWORD – optional password
//   REDIS_DB – database number (default 0)
//   REDIS_TLS – enable TLS
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST"`
	Port     string `envconfig:"REDIS_PORT"`
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	TLS      bool   `envconfig:"REDIS_TLS" default:"false"`
}

// Address resolves the dial address.
func (c RedisConfig) Address() string {
	if c.Host != "" && c.Port != "" {
		return c.Host + ":" + c.Port
	}
	return c.Addr
}

// NewRedisClient instantiates a Redis client using environment variables.
// The returned client is nil if the configuration is invalid or the
// server does not answer a ping within two seconds.
func NewRedisClient() *redis.Client {
	var c RedisConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil
	}
	var tlsConf *tls.Config
	if c.TLS {
		tlsConf = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      c.Address(),
		Password:  c.Password,
		DB:        c.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
