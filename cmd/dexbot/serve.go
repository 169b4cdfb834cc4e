package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/rs/zerolog"

	"github.com/lox/dexbot/cmd/dexbot/shared"
	"github.com/lox/dexbot/internal/cache"
	"github.com/lox/dexbot/internal/dex"
	"github.com/lox/dexbot/internal/server"
)

// ServeCmd runs the WebSocket server.
type ServeCmd struct {
	Config   string `kong:"short='c',default='dexbot.hcl',help='Path to HCL configuration file'"`
	Addr     string `kong:"short='a',help='Bind address (overrides config)'"`
	LogLevel string `kong:"short='l',help='Log level (overrides config)'"`
	LogJSON  bool   `kong:"help='Emit structured JSON logs'"`
}

func (c *ServeCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	addr := cfg.GetServerAddress()
	if c.Addr != "" {
		addr = c.Addr
	}

	debug := cfg.Server.LogLevel == "debug"

	// The session layer logs through charm, the data plane through zerolog.
	logger := log.New(os.Stderr)
	switch cfg.Server.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	var zlog zerolog.Logger
	if c.LogJSON {
		zlog = shared.SetupStructuredLogger(debug)
	} else {
		zlog = shared.SetupLogger(debug)
	}

	store, err := cache.Open(cfg.Cache.Path, zlog, cfg.CacheConfig())
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer func() { _ = store.Close() }()

	client := dex.New(zlog, store, cfg.DexConfig())
	defer client.Close()

	ctx := shared.SetupSignalHandlerWithLogger(zlog)

	for _, gen := range cfg.Generations {
		canonical, err := client.SetDefaultGeneration(ctx, gen.Scope, gen.Default)
		if err != nil {
			return fmt.Errorf("seeding generation for scope %q: %w", gen.Scope, err)
		}
		logger.Info("Pinned default generation", "scope", gen.Scope, "generation", canonical)
	}

	srv := server.NewServer(addr, logger)
	srv.SetGameService(server.NewGameService(srv, cfg.GameConfig(), cfg.LobbyTimeout(), logger, nil))
	srv.SetDexService(server.NewDexService(client, logger))

	logger.Info("Starting dexbot server",
		"addr", addr,
		"cache", cfg.Cache.Path,
		"maxSeats", cfg.Game.MaxSeats,
		"turnTimeout", cfg.Game.TurnTimeoutSeconds)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
		return srv.Stop()
	case err := <-serverErr:
		return err
	}
}
