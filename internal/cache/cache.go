// Package cache persists upstream API responses in SQLite with TTL
// expiry and LRU eviction. Entries live in the api_cache table keyed by
// a uniform hash of the semantic cache key; per-scope generation
// preferences live alongside them in scope_configs.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/dexbot/internal/cache/migrations"
	_ "modernc.org/sqlite"
)

// Defaults applied by Open when the config leaves them zero.
const (
	DefaultTTL           = 60 * time.Second
	DefaultMaxEntries    = 200
	DefaultSweepInterval = 300 * time.Second
)

// Key hashes a semantic cache key into the uniform digest stored in the
// database. Callers build readable keys ("gen9ou:pikachu") and hash at
// the storage boundary.
func Key(semantic string) string {
	return strconv.FormatUint(xxhash.Sum64String(semantic), 16)
}

// Config holds cache tuning.
type Config struct {
	// TTL is how long entries stay fresh.
	TTL time.Duration

	// MaxEntries caps the table size. When an insert pushes the count
	// over the cap, the least recently accessed tenth (at minimum one
	// entry) is evicted.
	MaxEntries int

	// SweepInterval is how often the background sweeper removes expired
	// entries. Zero or negative disables the sweeper.
	SweepInterval time.Duration

	// Clock is the time source, injectable for tests.
	Clock quartz.Clock
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	if c.Clock == nil {
		c.Clock = quartz.NewReal()
	}
	return c
}

// Store is a SQLite-backed response cache. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	cfg    Config
	logger zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Open opens the cache database at path, applies embedded migrations and
// starts the expiry sweeper.
func Open(path string, logger zerolog.Logger, cfg Config) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cache db: %w", err)
	}
	if err := applyMigrations(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{
		db:     db,
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("component", "cache").Logger(),
		stop:   make(chan struct{}),
	}
	if s.cfg.SweepInterval > 0 {
		s.wg.Add(1)
		go s.sweep()
	}
	return s, nil
}

// Close stops the sweeper and closes the database.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return s.db.Close()
}

// sweep periodically removes expired entries.
func (s *Store) sweep() {
	defer s.wg.Done()

	ticker := s.cfg.Clock.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := s.CleanupExpired(context.Background())
			if err != nil {
				s.logger.Warn().Err(err).Msg("cache sweep failed")
				continue
			}
			if removed > 0 {
				s.logger.Debug().Int64("removed", removed).Msg("swept expired cache entries")
			}
		case <-s.stop:
			return
		}
	}
}

// Get returns the cached payload for key. Expired entries are removed
// and reported as misses; hits refresh the entry's access time.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		payload   []byte
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM api_cache WHERE cache_key = ?`, key,
	).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	now := s.cfg.Clock.Now()
	if now.UTC().UnixMilli() >= expiresAt {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM api_cache WHERE cache_key = ?`, key); err != nil {
			return nil, false, fmt.Errorf("cache expire: %w", err)
		}
		return nil, false, nil
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE api_cache SET last_accessed = ? WHERE cache_key = ?`,
		now.UTC().UnixMilli(), key,
	); err != nil {
		return nil, false, fmt.Errorf("cache touch: %w", err)
	}
	return payload, true, nil
}

// Set stores payload under key with the configured TTL, then enforces
// the entry cap by evicting the least recently accessed entries.
func (s *Store) Set(ctx context.Context, key string, payload []byte) error {
	now := s.cfg.Clock.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO api_cache (cache_key, payload, created_at, expires_at, last_accessed)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(cache_key) DO UPDATE SET
    payload = excluded.payload,
    created_at = excluded.created_at,
    expires_at = excluded.expires_at,
    last_accessed = excluded.last_accessed`,
		key, payload, now.UnixMilli(), now.Add(s.cfg.TTL).UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return s.enforceCap(ctx)
}

// enforceCap evicts the least recently accessed tenth of the cap when
// the table has grown past it.
func (s *Store) enforceCap(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_cache`).Scan(&count); err != nil {
		return fmt.Errorf("cache count: %w", err)
	}
	if count <= s.cfg.MaxEntries {
		return nil
	}

	evict := s.cfg.MaxEntries / 10
	if evict < 1 {
		evict = 1
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_cache WHERE cache_key IN (
    SELECT cache_key FROM api_cache ORDER BY last_accessed ASC LIMIT ?
)`, evict)
	if err != nil {
		return fmt.Errorf("cache evict: %w", err)
	}
	removed, _ := res.RowsAffected()
	s.logger.Debug().Int64("evicted", removed).Int("entries", count).Msg("cache over capacity")
	return nil
}

// CleanupExpired removes every expired entry and returns how many were
// removed.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM api_cache WHERE expires_at <= ?`,
		s.cfg.Clock.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("cache cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every cache entry and returns how many were removed.
// Scope configs are left alone.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_cache`)
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	return res.RowsAffected()
}

// Stats is a snapshot of cache occupancy.
type Stats struct {
	Entries    int   `json:"entries"`
	Expired    int   `json:"expired"`
	MaxEntries int   `json:"maxEntries"`
	TotalBytes int64 `json:"totalBytes"`
}

// Stats reports entry counts and payload size. Expired counts entries
// past their TTL that the sweeper has not removed yet.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{MaxEntries: s.cfg.MaxEntries}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(payload)), 0) FROM api_cache`,
	).Scan(&st.Entries, &st.TotalBytes)
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM api_cache WHERE expires_at <= ?`,
		s.cfg.Clock.Now().UTC().UnixMilli(),
	).Scan(&st.Expired)
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	return st, nil
}

// ScopeGeneration returns the stored default generation for a scope.
func (s *Store) ScopeGeneration(ctx context.Context, scope string) (string, bool, error) {
	var generation string
	err := s.db.QueryRowContext(ctx,
		`SELECT generation FROM scope_configs WHERE scope = ?`, scope,
	).Scan(&generation)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("scope config get: %w", err)
	}
	return generation, true, nil
}

// SetScopeGeneration stores the default generation for a scope.
func (s *Store) SetScopeGeneration(ctx context.Context, scope, generation string) error {
	if scope == "" {
		return fmt.Errorf("scope is required")
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO scope_configs (scope, generation, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(scope) DO UPDATE SET
    generation = excluded.generation,
    updated_at = excluded.updated_at`,
		scope, generation, s.cfg.Clock.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("scope config set: %w", err)
	}
	return nil
}

// DeleteScopeGeneration removes a scope's stored generation, reverting
// it to the built-in default.
func (s *Store) DeleteScopeGeneration(ctx context.Context, scope string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scope_configs WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("scope config delete: %w", err)
	}
	return nil
}
