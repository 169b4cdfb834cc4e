package dex

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agext/levenshtein"
)

// pokemonResponse is the subset of PokeAPI's /pokemon payload we read.
type pokemonResponse struct {
	Name  string `json:"name"`
	ID    int    `json:"id"`
	Stats []struct {
		Effort int `json:"effort"`
		Stat   struct {
			Name string `json:"name"`
		} `json:"stat"`
	} `json:"stats"`
	Types []struct {
		Type struct {
			Name string `json:"name"`
		} `json:"type"`
	} `json:"types"`
	Sprites spriteSheet `json:"sprites"`
}

// speciesResponse is the subset of /pokemon-species we read. The
// generation URL ends in the numeric id of the generation the species
// debuted in.
type speciesResponse struct {
	Name       string `json:"name"`
	ID         int    `json:"id"`
	Generation struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"generation"`
}

type spriteSheet struct {
	FrontDefault string                            `json:"front_default"`
	FrontShiny   string                            `json:"front_shiny"`
	Versions     map[string]map[string]gameSprites `json:"versions"`
}

type gameSprites struct {
	FrontDefault string `json:"front_default"`
	FrontShiny   string `json:"front_shiny"`
}

// romanGenerations maps generation numbers to PokeAPI's version group
// keys. Generation 9 has no versioned sheet and uses the top level.
var romanGenerations = map[int]string{
	1: "generation-i",
	2: "generation-ii",
	3: "generation-iii",
	4: "generation-iv",
	5: "generation-v",
	6: "generation-vi",
	7: "generation-vii",
	8: "generation-viii",
}

// resolve picks the sprite URL for a generation. Old generations fall
// back through that era's per-game sheets in name order, first hit
// wins; games missing the requested variant are skipped.
func (s spriteSheet) resolve(shiny bool, generation int) string {
	if generation >= MaxGeneration {
		if shiny {
			return s.FrontShiny
		}
		return s.FrontDefault
	}
	games, ok := s.Versions[romanGenerations[generation]]
	if !ok {
		return ""
	}
	keys := make([]string, 0, len(games))
	for k := range games {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if shiny {
			if url := games[k].FrontShiny; url != "" {
				return url
			}
			continue
		}
		if url := games[k].FrontDefault; url != "" {
			return url
		}
	}
	return ""
}

// introducedGeneration parses the generation id off a PokeAPI resource
// URL such as ".../generation/5/". Unparseable URLs default to 1.
func introducedGeneration(url string) int {
	parts := strings.Split(strings.TrimRight(url, "/"), "/")
	if len(parts) == 0 {
		return 1
	}
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// GetEVYield returns the effort values a species grants, with its
// types and default sprite.
func (c *Client) GetEVYield(ctx context.Context, name string) (EVYield, error) {
	name = NormalizeName(name)
	cacheKey := "ev_yield:" + name
	return lookup(ctx, c, targetPokeAPI, "pokeapi:ev:"+cacheKey, cacheKey,
		func(ctx context.Context) (EVYield, error) {
			var yield EVYield
			err := c.guarded(ctx, c.pokeapi, func(ctx context.Context) error {
				found, err := c.fetchEVYield(ctx, name)
				if err != nil {
					return err
				}
				yield = found
				return nil
			})
			return yield, err
		})
}

func (c *Client) fetchEVYield(ctx context.Context, name string) (EVYield, error) {
	var data pokemonResponse
	if err := c.getJSON(ctx, c.cfg.PokeAPIURL+"/pokemon/"+name, &data); err != nil {
		return EVYield{}, err
	}
	yield := EVYield{
		Name:   data.Name,
		ID:     data.ID,
		Yields: make(map[string]int, len(data.Stats)),
		Sprite: data.Sprites.FrontDefault,
	}
	for _, s := range data.Stats {
		yield.Yields[s.Stat.Name] = s.Effort
		yield.Total += s.Effort
	}
	for _, t := range data.Types {
		yield.Types = append(yield.Types, t.Type.Name)
	}
	c.logger.Info().Str("name", name).Int("total", yield.Total).Msg("found ev yield")
	return yield, nil
}

// GetSprite returns a sprite for a species in a generation's art
// style. Requesting a generation before the species debuted returns a
// NotInGenerationError, which is never cached.
func (c *Client) GetSprite(ctx context.Context, name string, shiny bool, generation int) (Sprite, error) {
	if generation < 1 || generation > MaxGeneration {
		return Sprite{}, fmt.Errorf("%w: gen %d (valid: 1-%d)", ErrInvalidGeneration, generation, MaxGeneration)
	}
	name = NormalizeName(name)
	cacheKey := fmt.Sprintf("sprite:%s:%t:%d", name, shiny, generation)
	return lookup(ctx, c, targetPokeAPI, "pokeapi:sprite:"+cacheKey, cacheKey,
		func(ctx context.Context) (Sprite, error) {
			var sprite Sprite
			err := c.guarded(ctx, c.pokeapi, func(ctx context.Context) error {
				found, err := c.fetchSprite(ctx, name, shiny, generation)
				if err != nil {
					return err
				}
				sprite = found
				return nil
			})
			return sprite, err
		})
}

func (c *Client) fetchSprite(ctx context.Context, name string, shiny bool, generation int) (Sprite, error) {
	// The species record carries the debut generation; asking for an
	// older art style than that cannot succeed.
	var species speciesResponse
	if err := c.getJSON(ctx, c.cfg.PokeAPIURL+"/pokemon-species/"+name, &species); err != nil {
		return Sprite{}, err
	}
	introduced := introducedGeneration(species.Generation.URL)
	if generation < introduced {
		return Sprite{}, &NotInGenerationError{Name: name, Introduced: introduced, Requested: generation}
	}

	var data pokemonResponse
	if err := c.getJSON(ctx, c.cfg.PokeAPIURL+"/pokemon/"+name, &data); err != nil {
		return Sprite{}, err
	}
	url := data.Sprites.resolve(shiny, generation)
	if url == "" {
		return Sprite{}, fmt.Errorf("%w: no gen %d sprite for %s", ErrNotFound, generation, name)
	}
	c.logger.Info().
		Str("name", name).
		Bool("shiny", shiny).
		Int("generation", generation).
		Msg("found sprite")
	return Sprite{
		URL:        url,
		Name:       data.Name,
		ID:         data.ID,
		Shiny:      shiny,
		Generation: generation,
	}, nil
}

// AllNames returns every known species name. The list backs the
// suggestion feature, so it fetches without breaker protection or
// retries; a failure only degrades suggestions.
func (c *Client) AllNames(ctx context.Context) ([]string, error) {
	return lookup(ctx, c, targetPokeAPI, "pokeapi:names", "all_pokemon_names",
		func(ctx context.Context) ([]string, error) {
			var page struct {
				Results []struct {
					Name string `json:"name"`
				} `json:"results"`
			}
			if err := c.getJSON(ctx, c.cfg.PokeAPIURL+"/pokemon-species?limit=2000", &page); err != nil {
				return nil, err
			}
			names := make([]string, 0, len(page.Results))
			for _, r := range page.Results {
				names = append(names, r.Name)
			}
			c.logger.Info().Int("count", len(names)).Msg("cached species names for suggestions")
			return names, nil
		})
}

// Suggest returns up to three close matches for a misspelled species
// name, best first.
func (c *Client) Suggest(ctx context.Context, name string) []string {
	names, err := c.AllNames(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("name list unavailable for suggestions")
		return nil
	}
	return closestMatches(NormalizeName(name), names, 3, 0.6)
}

// closestMatches ranks candidates by Levenshtein similarity, keeping
// the top n at or above cutoff.
func closestMatches(target string, candidates []string, n int, cutoff float64) []string {
	type scored struct {
		name  string
		score float64
	}
	var ranked []scored
	for _, cand := range candidates {
		if s := levenshtein.Similarity(target, cand, nil); s >= cutoff {
			ranked = append(ranked, scored{cand, s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.name
	}
	return out
}
