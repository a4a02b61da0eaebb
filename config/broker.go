package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// BrokerConfig holds STOMP broker server configuration.
type BrokerConfig struct {
	Addr            string `env:"BROKER_ADDR,default=:8080" validate:"required"`
	Endpoint        string `env:"BROKER_ENDPOINT,default=/ws" validate:"required,startswith=/"`
	AppPrefix       string `env:"APP_PREFIX,default=/app" validate:"required,startswith=/"`
	TopicPrefix     string `env:"TOPIC_PREFIX,default=/topic" validate:"required,startswith=/"`
	UserPrefix      string `env:"USER_PREFIX,default=/user" validate:"required,startswith=/"`
	SendBuffer      int    `env:"SEND_BUFFER,default=256" validate:"gt=0"`
	MaxConnections  int    `env:"MAX_CONNECTIONS,default=1000" validate:"gt=0"`
	ReadBufferSize  int    `env:"READ_BUFFER_SIZE,default=1024" validate:"gt=0"`
	WriteBufferSize int    `env:"WRITE_BUFFER_SIZE,default=1024" validate:"gt=0"`
	JWTSecret       string `env:"JWT_SECRET"`
	LogLevel        string `env:"LOG_LEVEL,default=info"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=10s" validate:"gte=0"`
}

// DefaultBrokerConfig returns the default broker configuration.
func DefaultBrokerConfig() *BrokerConfig {
	cfg := &BrokerConfig{}
	_ = env.Unmarshal(env.EnvSet{}, cfg)
	return cfg
}

// BrokerConfigFromEnv loads the broker configuration from environment variables.
// Missing values fall back to defaults.
func BrokerConfigFromEnv() (*BrokerConfig, error) {
	cfg := &BrokerConfig{}
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate checks field constraints.
func (c *BrokerConfig) Validate() error {
	return validate.Struct(c)
}
