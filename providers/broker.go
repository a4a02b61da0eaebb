package providers

import (
	"context"
	"net"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/gudfood/realtime/config"
	"github.com/gudfood/realtime/src/auth"
	"github.com/gudfood/realtime/src/bridge"
	"github.com/gudfood/realtime/src/hub"
	"github.com/gudfood/realtime/src/stomp"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

const shutdownTimeout = 10 * time.Second

// Broker is the development STOMP broker: a hub behind a fasthttp server
// with a WebSocket endpoint and fiber admin routes.
type Broker struct {
	cfg      *config.BrokerConfig
	logger   zerolog.Logger
	hub      *hub.Hub
	relay    bridge.Relay
	app      *fiber.App
	server   *fasthttp.Server
	upgrader websocket.FastHTTPUpgrader
	active   bool
}

// NewBroker wires the hub, authenticator and routes. Nothing runs until
// Activate.
func NewBroker(cfg *config.BrokerConfig, logger zerolog.Logger) *Broker {
	opts := hub.DefaultOptions()
	opts.AppPrefix = cfg.AppPrefix
	opts.TopicPrefix = cfg.TopicPrefix
	opts.UserPrefix = cfg.UserPrefix
	opts.SendBuffer = cfg.SendBuffer
	opts.HeartBeat = cfg.HeartbeatInterval

	b := &Broker{
		cfg:    cfg,
		logger: logger.With().Str("component", "broker").Logger(),
		hub:    hub.New(opts, auth.New(cfg.JWTSecret), logger),
		app:    fiber.New(),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			Subprotocols:    []string{stomp.Subprotocol},
			CheckOrigin:     func(*fasthttp.RequestCtx) bool { return true },
		},
	}
	b.registerRoutes(b.app)
	b.server = &fasthttp.Server{
		Handler: b.Handler(),
		Name:    opts.ServerName,
	}
	return b
}

// Hub returns the underlying hub.
func (b *Broker) Hub() *hub.Hub { return b.hub }

// Activate starts the hub event loop and, when redisCfg is non-nil, the
// Redis relay.
func (b *Broker) Activate(redisCfg *bridge.RedisConfig) {
	if b.active {
		return
	}
	go b.hub.Run()
	if redisCfg != nil && redisCfg.Enabled() {
		b.initBridge(redisCfg)
	}
	b.active = true
	b.logger.Info().
		Str("endpoint", b.cfg.Endpoint).
		Bool("auth", b.cfg.JWTSecret != "").
		Msg("broker activated")
}

// initBridge tries to start the Redis relay.
// If Redis is not reachable, the broker runs standalone.
func (b *Broker) initBridge(cfg *bridge.RedisConfig) {
	rb := bridge.NewRedisBridge(cfg, b.hub, b.logger)
	if err := rb.Start(); err != nil {
		b.logger.Warn().Err(err).Msg("redis relay unavailable, running standalone")
		return
	}
	b.relay = rb
	b.hub.SetBridge(rb)
	b.logger.Info().Str("redis_addr", cfg.Addr).Msg("redis relay connected")
}

// ListenAndServe serves on the configured address until Deactivate.
func (b *Broker) ListenAndServe() error {
	b.logger.Info().Str("addr", b.cfg.Addr).Msg("broker listening")
	return b.server.ListenAndServe(b.cfg.Addr)
}

// Serve serves on ln until Deactivate.
func (b *Broker) Serve(ln net.Listener) error {
	return b.server.Serve(ln)
}

// Deactivate closes sessions, stops the server, the relay and the hub.
// Safe to call more than once.
func (b *Broker) Deactivate() error {
	if !b.active {
		return nil
	}
	b.hub.CloseSessions()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := b.server.ShutdownWithContext(ctx)

	if b.relay != nil {
		if stopErr := b.relay.Stop(); stopErr != nil {
			b.logger.Error().Err(stopErr).Msg("relay stop error")
		}
		b.relay = nil
	}
	b.hub.Stop()
	b.active = false
	return err
}
