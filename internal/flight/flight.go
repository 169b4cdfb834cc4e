// Package flight coordinates concurrent upstream fetches. Identical
// requests issued while a fetch is in flight share its result instead of
// hitting the upstream again, and two layers of semaphores cap how many
// fetches run at once: one global, one per upstream target.
package flight

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Default concurrency limits.
const (
	DefaultGlobalLimit = 10
	DefaultTargetLimit = 5
)

// Config holds coordinator limits.
type Config struct {
	// GlobalLimit caps fetches in flight across all targets.
	GlobalLimit int64

	// TargetLimit caps fetches in flight against any single target.
	TargetLimit int64
}

func (c Config) withDefaults() Config {
	if c.GlobalLimit <= 0 {
		c.GlobalLimit = DefaultGlobalLimit
	}
	if c.TargetLimit <= 0 {
		c.TargetLimit = DefaultTargetLimit
	}
	return c
}

// Coordinator deduplicates and rate-limits upstream fetches. Safe for
// concurrent use.
type Coordinator struct {
	cfg    Config
	group  singleflight.Group
	global *semaphore.Weighted

	requests atomic.Int64
	fetches  atomic.Int64

	mu      sync.Mutex
	targets map[string]*semaphore.Weighted
	active  map[string]int
}

// New creates a coordinator with the configured limits.
func New(cfg Config) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		cfg:     cfg,
		global:  semaphore.NewWeighted(cfg.GlobalLimit),
		targets: make(map[string]*semaphore.Weighted),
		active:  make(map[string]int),
	}
}

// Do runs fetch for key, coalescing concurrent calls with the same key
// onto a single execution. The fetch waits for a global permit and then a
// permit for its target before running; ctx cancellation while waiting
// for either, or while waiting on another caller's fetch, aborts the call.
func (c *Coordinator) Do(ctx context.Context, target, key string, fetch func(context.Context) (any, error)) (any, error) {
	c.requests.Add(1)

	ch := c.group.DoChan(key, func() (any, error) {
		return c.fetch(ctx, target, fetch)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) fetch(ctx context.Context, target string, fn func(context.Context) (any, error)) (any, error) {
	if err := c.global.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.global.Release(1)

	sem := c.targetSem(target)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer sem.Release(1)

	c.setActive(target, 1)
	defer c.setActive(target, -1)
	c.fetches.Add(1)

	return fn(ctx)
}

// targetSem returns the semaphore for target, creating it on first use.
func (c *Coordinator) targetSem(target string) *semaphore.Weighted {
	c.mu.Lock()
	defer c.mu.Unlock()
	sem, ok := c.targets[target]
	if !ok {
		sem = semaphore.NewWeighted(c.cfg.TargetLimit)
		c.targets[target] = sem
	}
	return sem
}

func (c *Coordinator) setActive(target string, delta int) {
	c.mu.Lock()
	c.active[target] += delta
	c.mu.Unlock()
}

// Forget drops the in-flight entry for key so the next Do runs a fresh
// fetch even if one is still executing.
func (c *Coordinator) Forget(key string) {
	c.group.Forget(key)
}

// Stats is a point-in-time snapshot of coordinator activity.
type Stats struct {
	Requests int64          `json:"requests"`
	Fetches  int64          `json:"fetches"`
	Deduped  int64          `json:"deduped"`
	Active   map[string]int `json:"active,omitempty"`
}

// Stats reports request and fetch counts. Deduped is the number of
// requests served by piggybacking on another caller's fetch.
func (c *Coordinator) Stats() Stats {
	requests := c.requests.Load()
	fetches := c.fetches.Load()

	c.mu.Lock()
	active := make(map[string]int, len(c.active))
	for target, n := range c.active {
		if n > 0 {
			active[target] = n
		}
	}
	c.mu.Unlock()

	deduped := requests - fetches
	if deduped < 0 {
		deduped = 0
	}
	return Stats{
		Requests: requests,
		Fetches:  fetches,
		Deduped:  deduped,
		Active:   active,
	}
}
