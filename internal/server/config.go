package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lox/dexbot/internal/breaker"
	"github.com/lox/dexbot/internal/cache"
	"github.com/lox/dexbot/internal/dex"
	"github.com/lox/dexbot/internal/flight"
	"github.com/lox/dexbot/internal/game"
)

// Config represents the complete dexbot configuration
type Config struct {
	Server      *ServerSettings   `hcl:"server,block"`
	Cache       *CacheSettings    `hcl:"cache,block"`
	API         *APISettings      `hcl:"api,block"`
	Game        *GameSettings     `hcl:"game,block"`
	Generations []GenerationScope `hcl:"generation,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// CacheSettings configures the persistent response cache
type CacheSettings struct {
	Path                 string `hcl:"path,optional"`
	TTLHours             int    `hcl:"ttl_hours,optional"`
	MaxEntries           int    `hcl:"max_entries,optional"`
	SweepIntervalSeconds int    `hcl:"sweep_interval_seconds,optional"`
}

// APISettings configures the upstream gateway client
type APISettings struct {
	SmogonURL              string `hcl:"smogon_url,optional"`
	PokeAPIURL             string `hcl:"pokeapi_url,optional"`
	RequestTimeoutSeconds  int    `hcl:"request_timeout_seconds,optional"`
	MaxTries               int    `hcl:"max_tries,optional"`
	BreakerThreshold       int    `hcl:"breaker_threshold,optional"`
	BreakerCooldownSeconds int    `hcl:"breaker_cooldown_seconds,optional"`
	MaxConcurrent          int    `hcl:"max_concurrent,optional"`
	MaxPerTarget           int    `hcl:"max_per_target,optional"`
}

// GameSettings configures blackjack game defaults
type GameSettings struct {
	MaxSeats            int `hcl:"max_seats,optional"`
	Decks               int `hcl:"decks,optional"`
	TurnTimeoutSeconds  int `hcl:"turn_timeout_seconds,optional"`
	LobbyTimeoutSeconds int `hcl:"lobby_timeout_seconds,optional"`
}

// GenerationScope pins a default generation for one lookup scope,
// e.g. generation "game:abc" { default = "gen8" }
type GenerationScope struct {
	Scope   string `hcl:"scope,label"`
	Default string `hcl:"default"`
}

// DefaultConfig returns the default dexbot configuration
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Cache: &CacheSettings{
			Path:                 "dexbot.db",
			TTLHours:             24,
			MaxEntries:           10000,
			SweepIntervalSeconds: int(cache.DefaultSweepInterval.Seconds()),
		},
		API: &APISettings{
			SmogonURL:              dex.DefaultSmogonURL,
			PokeAPIURL:             dex.DefaultPokeAPIURL,
			RequestTimeoutSeconds:  int(dex.DefaultRequestTimeout.Seconds()),
			MaxTries:               dex.DefaultMaxTries,
			BreakerThreshold:       breaker.DefaultFailureThreshold,
			BreakerCooldownSeconds: int(breaker.DefaultRecoveryTimeout.Seconds()),
			MaxConcurrent:          flight.DefaultGlobalLimit,
			MaxPerTarget:           flight.DefaultTargetLimit,
		},
		Game: &GameSettings{
			MaxSeats:            game.DefaultMaxSeats,
			Decks:               game.DefaultDecks,
			TurnTimeoutSeconds:  int(game.DefaultTurnTimeout.Seconds()),
			LobbyTimeoutSeconds: int(DefaultLobbyTimeout.Seconds()),
		},
	}
}

// LoadConfig loads configuration from an HCL file. A missing file yields
// the defaults.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.applyDefaults()
	return &config, nil
}

// applyDefaults fills missing blocks and values
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Server == nil {
		c.Server = defaults.Server
	}
	if c.Server.Address == "" {
		c.Server.Address = defaults.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaults.Server.LogLevel
	}

	if c.Cache == nil {
		c.Cache = defaults.Cache
	}
	if c.Cache.Path == "" {
		c.Cache.Path = defaults.Cache.Path
	}
	if c.Cache.TTLHours == 0 {
		c.Cache.TTLHours = defaults.Cache.TTLHours
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = defaults.Cache.MaxEntries
	}
	if c.Cache.SweepIntervalSeconds == 0 {
		c.Cache.SweepIntervalSeconds = defaults.Cache.SweepIntervalSeconds
	}

	if c.API == nil {
		c.API = defaults.API
	}
	if c.API.SmogonURL == "" {
		c.API.SmogonURL = defaults.API.SmogonURL
	}
	if c.API.PokeAPIURL == "" {
		c.API.PokeAPIURL = defaults.API.PokeAPIURL
	}
	if c.API.RequestTimeoutSeconds == 0 {
		c.API.RequestTimeoutSeconds = defaults.API.RequestTimeoutSeconds
	}
	if c.API.MaxTries == 0 {
		c.API.MaxTries = defaults.API.MaxTries
	}
	if c.API.BreakerThreshold == 0 {
		c.API.BreakerThreshold = defaults.API.BreakerThreshold
	}
	if c.API.BreakerCooldownSeconds == 0 {
		c.API.BreakerCooldownSeconds = defaults.API.BreakerCooldownSeconds
	}
	if c.API.MaxConcurrent == 0 {
		c.API.MaxConcurrent = defaults.API.MaxConcurrent
	}
	if c.API.MaxPerTarget == 0 {
		c.API.MaxPerTarget = defaults.API.MaxPerTarget
	}

	if c.Game == nil {
		c.Game = defaults.Game
	}
	if c.Game.MaxSeats == 0 {
		c.Game.MaxSeats = defaults.Game.MaxSeats
	}
	if c.Game.Decks == 0 {
		c.Game.Decks = defaults.Game.Decks
	}
	if c.Game.TurnTimeoutSeconds == 0 {
		c.Game.TurnTimeoutSeconds = defaults.Game.TurnTimeoutSeconds
	}
	if c.Game.LobbyTimeoutSeconds == 0 {
		c.Game.LobbyTimeoutSeconds = defaults.Game.LobbyTimeoutSeconds
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Cache.TTLHours < 1 {
		return fmt.Errorf("cache ttl_hours must be positive, got %d", c.Cache.TTLHours)
	}
	if c.Cache.MaxEntries < 1 {
		return fmt.Errorf("cache max_entries must be positive, got %d", c.Cache.MaxEntries)
	}

	if c.API.MaxTries < 1 {
		return fmt.Errorf("api max_tries must be positive, got %d", c.API.MaxTries)
	}
	if c.API.MaxConcurrent < c.API.MaxPerTarget {
		return fmt.Errorf("api max_concurrent (%d) must be at least max_per_target (%d)", c.API.MaxConcurrent, c.API.MaxPerTarget)
	}

	if c.Game.MaxSeats < 1 {
		return fmt.Errorf("game max_seats must be positive, got %d", c.Game.MaxSeats)
	}
	timeout := time.Duration(c.Game.TurnTimeoutSeconds) * time.Second
	if timeout < game.MinTurnTimeout || timeout > game.MaxTurnTimeout {
		return fmt.Errorf("game turn_timeout_seconds must be between %d and %d, got %d",
			int(game.MinTurnTimeout.Seconds()), int(game.MaxTurnTimeout.Seconds()), c.Game.TurnTimeoutSeconds)
	}

	for _, gen := range c.Generations {
		if gen.Scope == "" {
			return fmt.Errorf("generation block requires a scope label")
		}
		if _, err := dex.NormalizeGeneration(gen.Default); err != nil {
			return fmt.Errorf("generation %q: %w", gen.Scope, err)
		}
	}

	return nil
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// CacheConfig builds the cache store configuration
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		TTL:           time.Duration(c.Cache.TTLHours) * time.Hour,
		MaxEntries:    c.Cache.MaxEntries,
		SweepInterval: time.Duration(c.Cache.SweepIntervalSeconds) * time.Second,
	}
}

// DexConfig builds the gateway client configuration
func (c *Config) DexConfig() dex.Config {
	return dex.Config{
		SmogonURL:      c.API.SmogonURL,
		PokeAPIURL:     c.API.PokeAPIURL,
		RequestTimeout: time.Duration(c.API.RequestTimeoutSeconds) * time.Second,
		MaxTries:       c.API.MaxTries,
		Breaker: breaker.Config{
			FailureThreshold: c.API.BreakerThreshold,
			RecoveryTimeout:  time.Duration(c.API.BreakerCooldownSeconds) * time.Second,
		},
		Flight: flight.Config{
			GlobalLimit: int64(c.API.MaxConcurrent),
			TargetLimit: int64(c.API.MaxPerTarget),
		},
	}
}

// GameConfig builds the per-game engine defaults
func (c *Config) GameConfig() game.Config {
	return game.Config{
		MaxSeats:    c.Game.MaxSeats,
		Decks:       c.Game.Decks,
		TurnTimeout: time.Duration(c.Game.TurnTimeoutSeconds) * time.Second,
	}
}

// LobbyTimeout returns the configured lobby expiry
func (c *Config) LobbyTimeout() time.Duration {
	return time.Duration(c.Game.LobbyTimeoutSeconds) * time.Second
}
