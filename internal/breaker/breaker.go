// Package breaker implements a circuit breaker for upstream API calls.
//
// A breaker starts closed and counts failures. Once the failure threshold
// is reached it opens and rejects calls immediately, giving the upstream
// time to recover. After the recovery timeout a single caller is let
// through to probe; enough consecutive probe successes close the circuit
// again, any probe failure reopens it.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
)

// Defaults applied by New when the config leaves them zero.
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second
	DefaultSuccessThreshold = 2
)

// ErrOpen is returned by Do while the circuit is open. Callers should
// treat it as the upstream being unavailable rather than a new failure.
var ErrOpen = errors.New("breaker: circuit open")

// State is the breaker's position in its lifecycle.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of a state.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config holds breaker tuning.
type Config struct {
	// FailureThreshold is the number of counted failures that opens the
	// circuit.
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before a probe
	// is allowed through.
	RecoveryTimeout time.Duration

	// SuccessThreshold is the number of consecutive probe successes that
	// closes a half-open circuit.
	SuccessThreshold int

	// IsFailure classifies errors. Only errors it reports true for count
	// toward the failure threshold; anything else passes through the
	// breaker without moving it. Nil counts every error.
	IsFailure func(error) bool

	// Clock is the time source, injectable for tests.
	Clock quartz.Clock
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.IsFailure == nil {
		c.IsFailure = func(error) bool { return true }
	}
	if c.Clock == nil {
		c.Clock = quartz.NewReal()
	}
	return c
}

// Breaker guards calls to a single upstream. Safe for concurrent use.
type Breaker struct {
	name   string
	cfg    Config
	logger zerolog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	trips       int
	openedAt    time.Time
	lastFailure time.Time
}

// New creates a closed breaker named after the upstream it protects.
func New(name string, logger zerolog.Logger, cfg Config) *Breaker {
	return &Breaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("breaker", name).Logger(),
	}
}

// Do runs op through the breaker. While the circuit is open it returns
// ErrOpen without invoking op. The operation's error is returned as-is;
// whether it moves the breaker depends on the IsFailure classifier.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := op(ctx)
	b.record(err)
	return err
}

// allow admits or rejects a call, transitioning open circuits to
// half-open once the recovery timeout has elapsed.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.cfg.Clock.Now().Sub(b.openedAt) < b.cfg.RecoveryTimeout {
		return fmt.Errorf("%w: %s", ErrOpen, b.name)
	}

	b.state = StateHalfOpen
	b.successes = 0
	b.logger.Info().Msg("circuit half-open, probing upstream")
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case err == nil:
		b.onSuccess()
	case b.cfg.IsFailure(err):
		b.onFailure()
	}
	// Unclassified errors leave the breaker untouched.
}

func (b *Breaker) onSuccess() {
	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
			b.logger.Info().Msg("circuit closed")
		}
		return
	}
	b.failures = 0
}

func (b *Breaker) onFailure() {
	b.lastFailure = b.cfg.Clock.Now()

	if b.state == StateHalfOpen {
		b.open()
		return
	}
	b.failures++
	if b.failures >= b.cfg.FailureThreshold {
		b.open()
	}
}

func (b *Breaker) open() {
	b.state = StateOpen
	b.openedAt = b.cfg.Clock.Now()
	b.trips++
	b.logger.Warn().
		Int("failures", b.failures).
		Dur("recovery_timeout", b.cfg.RecoveryTimeout).
		Msg("circuit opened")
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the circuit closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
}

// Stats is a point-in-time snapshot of a breaker.
type Stats struct {
	Name             string    `json:"name"`
	State            string    `json:"state"`
	Failures         int       `json:"failures"`
	Trips            int       `json:"trips"`
	FailureThreshold int       `json:"failureThreshold"`
	SuccessThreshold int       `json:"successThreshold"`
	LastFailure      time.Time `json:"lastFailure"`
}

// Stats returns a snapshot of the breaker's counters and thresholds.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:             b.name,
		State:            b.state.String(),
		Failures:         b.failures,
		Trips:            b.trips,
		FailureThreshold: b.cfg.FailureThreshold,
		SuccessThreshold: b.cfg.SuccessThreshold,
		LastFailure:      b.lastFailure,
	}
}
