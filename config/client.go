package config

import (
	"time"

	"github.com/Netflix/go-env"
)

// ClientConfig holds realtime messaging client configuration.
type ClientConfig struct {
	BrokerURL         string        `env:"BROKER_URL,default=ws://localhost:8080/ws" validate:"required,url"`
	VirtualHost       string        `env:"VIRTUAL_HOST,default=localhost"`
	Login             string        `env:"LOGIN"`
	AccessToken       string        `env:"ACCESS_TOKEN"`
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY,default=5s" validate:"gte=0"`
	HandshakeTimeout  time.Duration `env:"HANDSHAKE_TIMEOUT,default=10s" validate:"gt=0"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=10s" validate:"gte=0"`
	ReceiptTimeout    time.Duration `env:"RECEIPT_TIMEOUT,default=5s" validate:"gt=0"`
	StateDir          string        `env:"STATE_DIR,default=.gudfood" validate:"required"`
	LogLevel          string        `env:"LOG_LEVEL,default=info"`
}

// DefaultClientConfig returns the default client configuration.
// The reconnect delay is a fixed 5s.
func DefaultClientConfig() *ClientConfig {
	cfg := &ClientConfig{}
	_ = env.Unmarshal(env.EnvSet{}, cfg)
	return cfg
}

// ClientConfigFromEnv loads the client configuration from environment variables.
func ClientConfigFromEnv() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate checks field constraints.
func (c *ClientConfig) Validate() error {
	return validate.Struct(c)
}
