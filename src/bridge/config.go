package bridge

import (
	"strconv"

	"github.com/Netflix/go-env"
)

// RedisConfig holds connection settings for the Redis pub/sub relay.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int
	RawDB    string `env:"REDIS_DB"`
	Prefix   string `env:"REDIS_PREFIX,default=gudfood:stomp:"`
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	cfg := &RedisConfig{}
	_ = env.Unmarshal(env.EnvSet{}, cfg)
	return cfg
}

// RedisConfigFromEnv loads Redis configuration from environment variables.
// Falls back to defaults for any missing values; an invalid REDIS_DB is 0.
func RedisConfigFromEnv() *RedisConfig {
	cfg := &RedisConfig{}
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return DefaultRedisConfig()
	}
	if db, err := strconv.Atoi(cfg.RawDB); err == nil {
		cfg.DB = db
	}
	return cfg
}

// Enabled reports whether a relay address is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}
