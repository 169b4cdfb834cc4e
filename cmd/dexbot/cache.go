package main

import (
	"fmt"

	"github.com/lox/dexbot/cmd/dexbot/shared"
	"github.com/lox/dexbot/internal/cache"
	"github.com/lox/dexbot/internal/server"
)

// CacheCmd groups cache maintenance commands.
type CacheCmd struct {
	Stats CacheStatsCmd `cmd:"" help:"Show cache entry counts and size"`
	Sweep CacheSweepCmd `cmd:"" help:"Remove expired cache entries"`
	Clear CacheClearCmd `cmd:"" help:"Remove every cache entry"`
}

func openCacheStore(configPath string, debug bool) (*cache.Store, error) {
	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cache.Open(cfg.Cache.Path, shared.SetupLogger(debug), cfg.CacheConfig())
}

// CacheStatsCmd prints store counters.
type CacheStatsCmd struct {
	Config string `short:"c" default:"dexbot.hcl" help:"Path to HCL configuration file"`
	Debug  bool   `help:"Enable debug logging"`
}

func (c *CacheStatsCmd) Run() error {
	store, err := openCacheStore(c.Config, c.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := shared.SetupSignalHandler()
	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Entries: %d / %d\n", stats.Entries, stats.MaxEntries)
	fmt.Printf("Expired: %d\n", stats.Expired)
	fmt.Printf("Payload bytes: %d\n", stats.TotalBytes)
	return nil
}

// CacheSweepCmd removes expired entries.
type CacheSweepCmd struct {
	Config string `short:"c" default:"dexbot.hcl" help:"Path to HCL configuration file"`
	Debug  bool   `help:"Enable debug logging"`
}

func (c *CacheSweepCmd) Run() error {
	store, err := openCacheStore(c.Config, c.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	removed, err := store.CleanupExpired(shared.SetupSignalHandler())
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d expired entries\n", removed)
	return nil
}

// CacheClearCmd drops all cached responses.
type CacheClearCmd struct {
	Config string `short:"c" default:"dexbot.hcl" help:"Path to HCL configuration file"`
	Debug  bool   `help:"Enable debug logging"`
}

func (c *CacheClearCmd) Run() error {
	store, err := openCacheStore(c.Config, c.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	removed, err := store.Clear(shared.SetupSignalHandler())
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d entries\n", removed)
	return nil
}
