// Command chatclient is a terminal chat client for the GudFood messaging
// broker.
//
// Exit codes: 0 on a clean quit, 1 on runtime failure, 2 on bad
// configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gudfood/realtime/config"
	"github.com/gudfood/realtime/src/client"
	"github.com/gudfood/realtime/src/localstore"
	"github.com/gudfood/realtime/src/logging"
	"github.com/gudfood/realtime/src/service"
	"github.com/gudfood/realtime/src/store"
	"github.com/gudfood/realtime/src/transport"
	"github.com/joho/godotenv"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// cliEnv holds settings only the CLI reads.
type cliEnv struct {
	UserID      string `env:"USER_ID"`
	Role        string `env:"ROLE"`
	ChatID      int64  `env:"CHAT_ID"`
	Counterpart string `env:"CHAT_COUNTERPART"`
	Acknowledge bool   `env:"ACKNOWLEDGE"`
}

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg, err := config.ClientConfigFromEnv()
	if err != nil {
		fail("invalid configuration: %v", err)
		return exitConfig
	}
	var opts cliEnv
	if _, err := env.UnmarshalFromEnviron(&opts); err != nil {
		fail("invalid configuration: %v", err)
		return exitConfig
	}
	logger := logging.New(cfg.LogLevel, "chatclient")

	local, err := localstore.Open(cfg.StateDir)
	if err != nil {
		fail("%v", err)
		return exitRuntime
	}
	defer local.Close()

	identity, err := resolveIdentity(local, opts)
	if err != nil {
		fail("%v", err)
		return exitConfig
	}
	if cfg.Login == "" {
		cfg.Login = identity.UserID
	}

	c := client.New(cfg, transport.NewWebSocketDialer(cfg.HandshakeTimeout), logger)
	svc := service.New(c, store.New(), service.Options{
		UserID:      identity.UserID,
		Role:        identity.Role,
		Acknowledge: opts.Acknowledge,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	err = c.Connect(connectCtx)
	cancel()
	if err != nil {
		fail("connect %s: %v", cfg.BrokerURL, err)
		return exitRuntime
	}
	defer c.Disconnect()

	ui := newCLI(svc, local, os.Stdout)
	defer ui.Close()
	if err := ui.Start(); err != nil {
		fail("%v", err)
		return exitRuntime
	}
	if opts.ChatID > 0 {
		if err := ui.Open(opts.ChatID, opts.Counterpart); err != nil {
			fail("%v", err)
			return exitRuntime
		}
	}

	ui.Banner(identity, cfg.BrokerURL)
	if err := ui.Loop(ctx, os.Stdin); err != nil {
		fail("%v", err)
		return exitRuntime
	}
	return exitOK
}

// resolveIdentity prefers USER_ID/ROLE from the environment and remembers
// them. Otherwise the identity saved by a previous run is used.
func resolveIdentity(local *localstore.LocalStore, opts cliEnv) (localstore.Identity, error) {
	if opts.UserID != "" {
		id := localstore.Identity{UserID: opts.UserID, Role: store.Role(opts.Role)}
		if id.Role == "" {
			id.Role = store.RoleBuyer
		}
		if err := local.SaveIdentity(id); err != nil {
			return localstore.Identity{}, err
		}
		return id, nil
	}
	id, err := local.LoadIdentity()
	if errors.Is(err, localstore.ErrNoIdentity) {
		return localstore.Identity{}, errors.New("no identity: set USER_ID and ROLE")
	}
	return id, err
}

func fail(format string, args ...any) {
	fmt.Fprintln(os.Stderr, color.FgRed.Sprintf("error: "+format, args...))
}
