// Package dex is a read-through gateway for competitive Pokemon data.
// Lookups check the sqlite cache first, then fall through to the
// upstream APIs with per-upstream circuit breakers, retry with
// exponential backoff, and in-flight deduplication so identical
// concurrent requests cost one upstream call.
package dex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/dexbot/internal/breaker"
	"github.com/lox/dexbot/internal/cache"
	"github.com/lox/dexbot/internal/flight"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultSmogonURL      = "https://data.pkmn.cc/sets"
	DefaultPokeAPIURL     = "https://pokeapi.co/api/v2"
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxTries       = 3
	DefaultRetryBaseDelay = 1 * time.Second
	DefaultRetryMaxDelay  = 10 * time.Second
	DefaultBatchSize      = 5
	DefaultBatchDelay     = 100 * time.Millisecond
)

// Upstream names, used for breaker identity and dedup key prefixes.
const (
	targetSmogon  = "smogon"
	targetPokeAPI = "pokeapi"
)

var (
	// ErrNotFound means the upstream answered and the requested data
	// does not exist there.
	ErrNotFound = errors.New("dex: not found")

	// ErrUnavailable means the upstream could not be used, typically
	// because its circuit breaker is open.
	ErrUnavailable = errors.New("dex: upstream unavailable")

	// errBadPayload marks an upstream body that did not parse. The
	// transfer itself succeeded, so a retry would fetch the same bytes.
	errBadPayload = errors.New("dex: undecodable response")
)

// StatusError is a non-success HTTP response from an upstream.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.Status)
}

// isUpstreamFailure classifies errors for the circuit breakers.
// Missing data, generation mismatches and caller cancellation are not
// upstream faults; every other error (timeouts, transport failures,
// bad statuses, undecodable bodies) counts against the breaker.
func isUpstreamFailure(err error) bool {
	var notInGen *NotInGenerationError
	if errors.As(err, &notInGen) {
		return false
	}
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, context.Canceled)
}

// isTerminal reports errors that no amount of retrying will change.
func isTerminal(err error) bool {
	var notInGen *NotInGenerationError
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, breaker.ErrOpen) ||
		errors.Is(err, errBadPayload) ||
		errors.As(err, &notInGen)
}

// Config tunes the gateway. Zero values fall back to the defaults
// above.
type Config struct {
	// SmogonURL is the base URL serving one JSON set file per format.
	SmogonURL string

	// PokeAPIURL is the PokeAPI v2 base URL.
	PokeAPIURL string

	// RequestTimeout bounds each individual upstream request.
	RequestTimeout time.Duration

	// MaxTries caps attempts per upstream call, first try included.
	MaxTries       int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// BatchSize is how many formats a tier scan queries concurrently,
	// and BatchDelay the pause between batches.
	BatchSize  int
	BatchDelay time.Duration

	// Breaker applies to both upstreams. Its failure classifier and
	// clock are filled in when unset.
	Breaker breaker.Config

	// Flight bounds concurrent upstream fetches.
	Flight flight.Config

	// Clock defaults to the real clock.
	Clock quartz.Clock
}

func (c Config) withDefaults() Config {
	if c.SmogonURL == "" {
		c.SmogonURL = DefaultSmogonURL
	}
	if c.PokeAPIURL == "" {
		c.PokeAPIURL = DefaultPokeAPIURL
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxTries <= 0 {
		c.MaxTries = DefaultMaxTries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = DefaultBatchDelay
	}
	if c.Clock == nil {
		c.Clock = quartz.NewReal()
	}
	if c.Breaker.IsFailure == nil {
		c.Breaker.IsFailure = isUpstreamFailure
	}
	if c.Breaker.Clock == nil {
		c.Breaker.Clock = c.Clock
	}
	return c
}

// Client answers data lookups from cache where possible and from the
// upstream APIs otherwise. Safe for concurrent use.
type Client struct {
	cfg     Config
	logger  zerolog.Logger
	clock   quartz.Clock
	http    *http.Client
	store   *cache.Store
	flights *flight.Coordinator
	smogon  *breaker.Breaker
	pokeapi *breaker.Breaker

	hits   atomic.Int64
	misses atomic.Int64
}

// New builds a gateway over the given cache store. The store stays
// owned by the caller and is not closed by Client.Close.
func New(logger zerolog.Logger, store *cache.Store, cfg Config) *Client {
	cfg = cfg.withDefaults()
	logger = logger.With().Str("component", "dex").Logger()
	return &Client{
		cfg:     cfg,
		logger:  logger,
		clock:   cfg.Clock,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		store:   store,
		flights: flight.New(cfg.Flight),
		smogon:  breaker.New(targetSmogon, logger, cfg.Breaker),
		pokeapi: breaker.New(targetPokeAPI, logger, cfg.Breaker),
	}
}

// Close logs final cache effectiveness and releases idle connections.
func (c *Client) Close() {
	c.logger.Info().
		Int64("cache_hits", c.hits.Load()).
		Int64("cache_misses", c.misses.Load()).
		Msg("dex client closing")
	c.http.CloseIdleConnections()
}

// getJSON fetches url and decodes the body into v. A 404 maps to
// ErrNotFound, any other non-200 status to a StatusError.
func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: url, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %v", errBadPayload, url, err)
	}
	return nil
}

// guarded runs fn behind the upstream's breaker, retrying transient
// failures with exponential backoff. ErrNotFound and an open circuit
// are terminal. Every attempt passes through the breaker so repeated
// retries against a failing upstream trip it quickly.
func (c *Client) guarded(ctx context.Context, br *breaker.Breaker, fn func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBaseDelay
	bo.MaxInterval = c.cfg.RetryMaxDelay
	op := func() (struct{}, error) {
		err := br.Do(ctx, fn)
		if err != nil && isTerminal(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.cfg.MaxTries)))
	if errors.Is(err, breaker.ErrOpen) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// cacheGet reads a cached payload, degrading store errors to a miss.
func (c *Client) cacheGet(ctx context.Context, digest string) ([]byte, bool) {
	payload, ok, err := c.store.Get(ctx, digest)
	if err != nil {
		c.logger.Error().Err(err).Msg("cache read failed")
		return nil, false
	}
	return payload, ok
}

// cachePut stores a fetched value. Failures are logged and swallowed
// so a broken cache never fails a lookup that already has its data.
func (c *Client) cachePut(ctx context.Context, digest string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error().Err(err).Msg("cache encode failed")
		return
	}
	if err := c.store.Set(ctx, digest, payload); err != nil {
		c.logger.Error().Err(err).Msg("cache write failed")
	}
}

// lookup is the read-through pipeline shared by every data operation:
// cache, then a deduplicated, breaker-guarded fetch whose result is
// cached by the flight that performed it.
func lookup[T any](ctx context.Context, c *Client, target, dedupKey, cacheKey string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	digest := cache.Key(cacheKey)
	if payload, ok := c.cacheGet(ctx, digest); ok {
		var v T
		if err := json.Unmarshal(payload, &v); err == nil {
			c.hits.Add(1)
			return v, nil
		}
		c.logger.Warn().Str("key", cacheKey).Msg("discarding undecodable cache entry")
	}
	c.misses.Add(1)
	res, err := c.flights.Do(ctx, target, dedupKey, func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.cachePut(ctx, digest, v)
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("dex: unexpected %T for %s", res, dedupKey)
	}
	return v, nil
}

// sleep waits for d or until ctx is done.
func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := c.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CacheStats reports lookup effectiveness since startup alongside the
// store's current footprint.
type CacheStats struct {
	Hits    int64       `json:"hits"`
	Misses  int64       `json:"misses"`
	HitRate float64     `json:"hitRate"`
	Store   cache.Stats `json:"store"`
}

func (c *Client) CacheStats(ctx context.Context) (CacheStats, error) {
	stats := CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	store, err := c.store.Stats(ctx)
	if err != nil {
		return stats, err
	}
	stats.Store = store
	return stats, nil
}

// ClearCache drops every cached payload and resets the hit counters.
// It returns the number of entries removed.
func (c *Client) ClearCache(ctx context.Context) (int64, error) {
	removed, err := c.store.Clear(ctx)
	if err != nil {
		return 0, err
	}
	c.hits.Store(0)
	c.misses.Store(0)
	c.logger.Info().Int64("removed", removed).Msg("cache cleared")
	return removed, nil
}

// BreakerStats reports both upstream breakers, smogon first.
func (c *Client) BreakerStats() []breaker.Stats {
	return []breaker.Stats{c.smogon.Stats(), c.pokeapi.Stats()}
}

// FlightStats reports request coordination counters.
func (c *Client) FlightStats() flight.Stats {
	return c.flights.Stats()
}

// DefaultGenerationFor returns the configured generation for a scope,
// falling back to the global default.
func (c *Client) DefaultGenerationFor(ctx context.Context, scope string) string {
	gen, ok, err := c.store.ScopeGeneration(ctx, scope)
	if err != nil {
		c.logger.Error().Err(err).Str("scope", scope).Msg("scope config read failed")
		return DefaultGeneration
	}
	if !ok {
		return DefaultGeneration
	}
	return gen
}

// SetDefaultGeneration validates and stores a scope's default
// generation, returning the canonical form.
func (c *Client) SetDefaultGeneration(ctx context.Context, scope, generation string) (string, error) {
	gen, err := NormalizeGeneration(generation)
	if err != nil {
		return "", err
	}
	if err := c.store.SetScopeGeneration(ctx, scope, gen); err != nil {
		return "", err
	}
	return gen, nil
}
