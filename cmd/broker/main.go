// Command broker runs the development STOMP-over-WebSocket broker.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gudfood/realtime/config"
	"github.com/gudfood/realtime/providers"
	"github.com/gudfood/realtime/src/bridge"
	"github.com/gudfood/realtime/src/logging"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.BrokerConfigFromEnv()
	if err != nil {
		bootLogger := logging.New("info", "broker")
		bootLogger.Error().Err(err).Msg("invalid broker configuration")
		os.Exit(2)
	}
	logger := logging.New(cfg.LogLevel, "broker")

	broker := providers.NewBroker(cfg, logger)
	broker.Activate(bridge.RedisConfigFromEnv())

	errs := make(chan error, 1)
	go func() { errs <- broker.ListenAndServe() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errs:
		if err != nil {
			logger.Error().Err(err).Msg("server stopped")
			_ = broker.Deactivate()
			os.Exit(1)
		}
	}

	if err := broker.Deactivate(); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		os.Exit(1)
	}
	logger.Info().Msg("broker stopped")
}
