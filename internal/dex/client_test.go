package dex

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/dexbot/internal/cache"
)

func openTestStore(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), zerolog.Nop(), cache.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// newTestClient points both upstreams at one test server and shrinks
// the retry and batch delays so failure paths run fast.
func newTestClient(t *testing.T, handler http.Handler, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.SmogonURL = srv.URL + "/sets"
	cfg.PokeAPIURL = srv.URL + "/api"
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = time.Millisecond
	}
	if cfg.RetryMaxDelay == 0 {
		cfg.RetryMaxDelay = 5 * time.Millisecond
	}
	if cfg.BatchDelay == 0 {
		cfg.BatchDelay = time.Millisecond
	}
	c := New(zerolog.Nop(), openTestStore(t), cfg)
	t.Cleanup(c.Close)
	return c
}

const tuskSets = `{"Great Tusk": {
	"Bulky Setup": {
		"moves": [["Headlong Rush", "Earthquake"], "Bulk Up", "Rapid Spin", "Ice Spinner"],
		"item": "Leftovers",
		"nature": "Impish",
		"evs": {"hp": 252, "def": 4, "spe": 252},
		"teratypes": ["Steel", "Water"]
	}
}}`

func TestGetSetsReadThrough(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/sets/gen9ou.json", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, tuskSets)
	})
	c := newTestClient(t, mux, Config{})
	ctx := context.Background()

	sets, err := c.GetSets(ctx, "Great Tusk", "gen9", "ou")
	require.NoError(t, err)
	require.Contains(t, sets, "Bulky Setup")
	set := sets["Bulky Setup"]
	assert.Equal(t, "Leftovers", set.Item.String())
	assert.Equal(t, "Steel / Water", set.Tera().String())
	assert.Equal(t, "252 HP / 4 DEF / 252 SPE", FormatEVs(set.EVs))
	assert.EqualValues(t, 1, calls.Load())

	// Second lookup is served from the cache.
	sets, err = c.GetSets(ctx, "great tusk", "9", "OU")
	require.NoError(t, err)
	require.Contains(t, sets, "Bulky Setup")
	assert.EqualValues(t, 1, calls.Load())

	stats, err := c.CacheStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.EqualValues(t, 1, stats.Store.Entries)
	assert.InDelta(t, 50.0, stats.HitRate, 0.01)
}

func TestGetSetsMatchesPartialName(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/sets/gen9ou.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"Iron Moth": {"Special Attacker": {"item": "Booster Energy"}},
			"Iron Valiant": {"Swords Dance": {"item": "Booster Energy"}}
		}`)
	})
	c := newTestClient(t, mux, Config{})
	ctx := context.Background()

	sets, err := c.GetSets(ctx, "valiant", "gen9", "ou")
	require.NoError(t, err)
	assert.Contains(t, sets, "Swords Dance")

	// An ambiguous prefix resolves to the first key in sorted order.
	sets, err = c.GetSets(ctx, "iron", "gen9", "ou")
	require.NoError(t, err)
	assert.Contains(t, sets, "Special Attacker")
}

func TestGetSetsNotFound(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/sets/gen9ou.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, tuskSets)
	})
	c := newTestClient(t, mux, Config{})
	ctx := context.Background()

	// Species absent from a format that exists.
	_, err := c.GetSets(ctx, "garchomp", "gen9", "ou")
	assert.ErrorIs(t, err, ErrNotFound)

	// Format file that does not exist at all.
	_, err = c.GetSets(ctx, "garchomp", "gen9", "uu")
	assert.ErrorIs(t, err, ErrNotFound)

	// Neither case counts against the upstream's breaker.
	assert.Equal(t, "closed", c.BreakerStats()[0].State)
	assert.Zero(t, c.BreakerStats()[0].Failures)
}

func TestGetSetsInvalidGeneration(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	c := newTestClient(t, mux, Config{})

	_, err := c.GetSets(context.Background(), "pikachu", "gen42", "ou")
	assert.ErrorIs(t, err, ErrInvalidGeneration)
	assert.Zero(t, calls.Load())
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/sets/gen9ou.json", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "upstream sad", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, tuskSets)
	})
	c := newTestClient(t, mux, Config{})

	sets, err := c.GetSets(context.Background(), "great-tusk", "gen9", "ou")
	require.NoError(t, err)
	assert.Contains(t, sets, "Bulky Setup")
	assert.EqualValues(t, 3, calls.Load())
}

func TestUndecodableBodyIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/sets/gen9ou.json", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, "<html>maintenance page</html>")
	})
	c := newTestClient(t, mux, Config{})

	_, err := c.GetSets(context.Background(), "great-tusk", "gen9", "ou")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 1, calls.Load())

	// A garbage-returning upstream still counts as failing.
	assert.EqualValues(t, 1, c.BreakerStats()[0].Failures)
}

func TestBreakerOpensAndFailsFast(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/sets/gen9ou.json", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream down", http.StatusInternalServerError)
	})
	c := newTestClient(t, mux, Config{MaxTries: 1})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.GetSets(ctx, fmt.Sprintf("mon%d", i), "gen9", "ou")
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, "open", c.BreakerStats()[0].State)
	assert.EqualValues(t, 5, calls.Load())

	// Open circuit short-circuits before the upstream is touched.
	_, err := c.GetSets(ctx, "another", "gen9", "ou")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.EqualValues(t, 5, calls.Load())

	// The other upstream's breaker is unaffected.
	assert.Equal(t, "closed", c.BreakerStats()[1].State)
}

func TestFindAcrossTiersScansAndRemembersLocations(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	total := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/sets/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		total++
		mu.Unlock()
		switch r.URL.Path {
		case "/sets/gen9ou.json", "/sets/gen9uu.json":
			fmt.Fprint(w, `{"Rotom-Wash": {"Defensive Pivot": {"item": "Leftovers"}}}`)
		default:
			http.NotFound(w, r)
		}
	})
	c := newTestClient(t, mux, Config{})
	ctx := context.Background()

	found, err := c.FindAcrossTiers(ctx, "rotom wash", "gen9")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "ou", found[0].Tier)
	assert.Equal(t, "uu", found[1].Tier)
	assert.Contains(t, found[0].Sets, "Defensive Pivot")

	mu.Lock()
	scanned := total
	mu.Unlock()
	assert.Equal(t, len(FormatsFor("gen9")), scanned)

	// The second search uses the remembered locations and the cached
	// sets, so the upstream sees nothing new.
	found, err = c.FindAcrossTiers(ctx, "Rotom Wash", "gen9")
	require.NoError(t, err)
	require.Len(t, found, 2)

	mu.Lock()
	assert.Equal(t, scanned, total)
	mu.Unlock()
}

func TestFindAcrossTiersNotFound(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/sets/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	c := newTestClient(t, mux, Config{})

	_, err := c.FindAcrossTiers(context.Background(), "missingno", "gen9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentLookupsShareOneFetch(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/sets/gen9ou.json", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond)
		fmt.Fprint(w, tuskSets)
	})
	c := newTestClient(t, mux, Config{})
	ctx := context.Background()

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			sets, err := c.GetSets(ctx, "great-tusk", "gen9", "ou")
			assert.NoError(t, err)
			assert.Contains(t, sets, "Bulky Setup")
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	stats := c.FlightStats()
	assert.EqualValues(t, 1, stats.Fetches)
	assert.EqualValues(t, 5, stats.Requests)
}

func TestGetEVYield(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/pokemon/garchomp", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{
			"name": "garchomp", "id": 445,
			"stats": [
				{"effort": 0, "stat": {"name": "hp"}},
				{"effort": 3, "stat": {"name": "attack"}},
				{"effort": 0, "stat": {"name": "speed"}}
			],
			"types": [{"type": {"name": "dragon"}}, {"type": {"name": "ground"}}],
			"sprites": {"front_default": "https://img.example/445.png"}
		}`)
	})
	c := newTestClient(t, mux, Config{})
	ctx := context.Background()

	y, err := c.GetEVYield(ctx, "Garchomp")
	require.NoError(t, err)
	assert.Equal(t, "garchomp", y.Name)
	assert.Equal(t, 445, y.ID)
	assert.Equal(t, 3, y.Yields["attack"])
	assert.Equal(t, 3, y.Total)
	assert.Equal(t, []string{"dragon", "ground"}, y.Types)
	assert.Equal(t, "https://img.example/445.png", y.Sprite)
	assert.Equal(t, "+3 Atk", y.FormatYields())

	_, err = c.GetEVYield(ctx, "garchomp")
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func spriteUpstream(t *testing.T, introducedGen int, speciesCalls *atomic.Int64) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/pokemon-species/pikachu", func(w http.ResponseWriter, r *http.Request) {
		if speciesCalls != nil {
			speciesCalls.Add(1)
		}
		fmt.Fprintf(w, `{"name": "pikachu", "id": 25,
			"generation": {"name": "generation-x", "url": "https://pokeapi.co/api/v2/generation/%d/"}}`,
			introducedGen)
	})
	mux.HandleFunc("/api/pokemon/pikachu", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"name": "pikachu", "id": 25,
			"sprites": {
				"front_default": "https://img.example/new.png",
				"front_shiny": "https://img.example/new-shiny.png",
				"versions": {
					"generation-ii": {
						"crystal": {"front_default": "https://img.example/crystal.png", "front_shiny": null},
						"gold": {"front_default": "https://img.example/gold.png", "front_shiny": "https://img.example/gold-shiny.png"}
					}
				}
			}
		}`)
	})
	return mux
}

func TestGetSprite(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, spriteUpstream(t, 1, nil), Config{})
	ctx := context.Background()

	// Current generation reads the top-level artwork.
	sprite, err := c.GetSprite(ctx, "Pikachu", false, 9)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/new.png", sprite.URL)
	assert.Equal(t, 25, sprite.ID)
	assert.Equal(t, 9, sprite.Generation)

	sprite, err = c.GetSprite(ctx, "pikachu", true, 9)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/new-shiny.png", sprite.URL)
	assert.True(t, sprite.Shiny)

	// Old generations walk that era's games in name order.
	sprite, err = c.GetSprite(ctx, "pikachu", false, 2)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/crystal.png", sprite.URL)

	// Games without the shiny variant are skipped.
	sprite, err = c.GetSprite(ctx, "pikachu", true, 2)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/gold-shiny.png", sprite.URL)

	// A generation with no sheet at all has no sprite.
	_, err = c.GetSprite(ctx, "pikachu", false, 3)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.GetSprite(ctx, "pikachu", false, 12)
	assert.ErrorIs(t, err, ErrInvalidGeneration)
}

func TestGetSpriteBeforeDebutGeneration(t *testing.T) {
	t.Parallel()

	var speciesCalls atomic.Int64
	c := newTestClient(t, spriteUpstream(t, 5, &speciesCalls), Config{})
	ctx := context.Background()

	_, err := c.GetSprite(ctx, "pikachu", false, 2)
	var notInGen *NotInGenerationError
	require.ErrorAs(t, err, &notInGen)
	assert.Equal(t, 5, notInGen.Introduced)
	assert.Equal(t, 2, notInGen.Requested)

	// The mismatch is not cached, so asking again consults the
	// upstream again.
	_, err = c.GetSprite(ctx, "pikachu", false, 2)
	require.ErrorAs(t, err, &notInGen)
	assert.EqualValues(t, 2, speciesCalls.Load())

	// It also leaves the breaker alone.
	assert.Equal(t, "closed", c.BreakerStats()[1].State)
	assert.Zero(t, c.BreakerStats()[1].Failures)
}

func TestSuggest(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/pokemon-species", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"results": [
			{"name": "pikachu"}, {"name": "pidgey"},
			{"name": "garchomp"}, {"name": "gardevoir"}
		]}`)
	})
	c := newTestClient(t, mux, Config{})
	ctx := context.Background()

	assert.Equal(t, []string{"pikachu"}, c.Suggest(ctx, "pikchu"))
	assert.Empty(t, c.Suggest(ctx, "zzzzzz"))

	// The name list is fetched once and cached.
	assert.EqualValues(t, 1, calls.Load())
}

func TestSuggestDegradesWhenListUnavailable(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/pokemon-species", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	c := newTestClient(t, mux, Config{})

	assert.Empty(t, c.Suggest(context.Background(), "pikchu"))
}

func TestScopeGenerations(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.NewServeMux(), Config{})
	ctx := context.Background()

	assert.Equal(t, "gen9", c.DefaultGenerationFor(ctx, "room:1"))

	gen, err := c.SetDefaultGeneration(ctx, "room:1", "8")
	require.NoError(t, err)
	assert.Equal(t, "gen8", gen)
	assert.Equal(t, "gen8", c.DefaultGenerationFor(ctx, "room:1"))
	assert.Equal(t, "gen9", c.DefaultGenerationFor(ctx, "room:2"))

	_, err = c.SetDefaultGeneration(ctx, "room:1", "gen42")
	assert.ErrorIs(t, err, ErrInvalidGeneration)
	assert.Equal(t, "gen8", c.DefaultGenerationFor(ctx, "room:1"))
}

func TestClearCacheForcesRefetch(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/sets/gen9ou.json", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, tuskSets)
	})
	c := newTestClient(t, mux, Config{})
	ctx := context.Background()

	_, err := c.GetSets(ctx, "great-tusk", "gen9", "ou")
	require.NoError(t, err)

	removed, err := c.ClearCache(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	stats, err := c.CacheStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)

	_, err = c.GetSets(ctx, "great-tusk", "gen9", "ou")
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}
