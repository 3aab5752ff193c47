package redis

import (
	"time"

	"github.com/echohealth/echo_backend/config"
)

// Config holds Redis connection settings
type Config struct {
	Addr     string
	DB       int
	Username string
	Password string

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func orDefault[T int | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// FromCentralConfig converts central config.RedisConfig to package Config,
// filling unset pool and timeout values from DefaultConfig.
func FromCentralConfig(c config.RedisConfig) Config {
	def := DefaultConfig()
	return Config{
		Addr:         c.Addr,
		DB:           c.DB,
		Username:     c.Username,
		Password:     c.Password,
		PoolSize:     orDefault(c.PoolSize, def.PoolSize),
		MinIdleConns: orDefault(c.MinIdleConns, def.MinIdleConns),
		DialTimeout:  orDefault(seconds(c.DialTimeoutSeconds), def.DialTimeout),
		ReadTimeout:  orDefault(seconds(c.ReadTimeoutSeconds), def.ReadTimeout),
		WriteTimeout: orDefault(seconds(c.WriteTimeoutSeconds), def.WriteTimeout),
	}
}
