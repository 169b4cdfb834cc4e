package dex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lox/dexbot/internal/cache"
)

// GetSets returns the published competitive sets for one species in
// one format. The species name matches exactly first, then by
// substring, so "landorus" finds "landorus-therian" when the base form
// is absent.
func (c *Client) GetSets(ctx context.Context, name, generation, tier string) (SetList, error) {
	name = NormalizeName(name)
	gen, err := NormalizeGeneration(generation)
	if err != nil {
		return nil, err
	}
	formatID := gen + NormalizeTier(tier)
	cacheKey := formatID + ":" + name
	return lookup(ctx, c, targetSmogon, "smogon:sets:"+cacheKey, cacheKey,
		func(ctx context.Context) (SetList, error) {
			var sets SetList
			err := c.guarded(ctx, c.smogon, func(ctx context.Context) error {
				found, err := c.fetchSets(ctx, formatID, name)
				if err != nil {
					return err
				}
				sets = found
				return nil
			})
			return sets, err
		})
}

// fetchSets downloads a format's full set file and extracts one
// species. A missing format file and a species with no sets both map
// to ErrNotFound. Keys scan in sorted order so partial matches are
// deterministic.
func (c *Client) fetchSets(ctx context.Context, formatID, name string) (SetList, error) {
	url := fmt.Sprintf("%s/%s.json", c.cfg.SmogonURL, formatID)
	var file map[string]SetList
	if err := c.getJSON(ctx, url, &file); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(file))
	for k := range file {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if NormalizeName(key) == name {
			c.logger.Info().
				Str("name", name).
				Str("format", formatID).
				Int("sets", len(file[key])).
				Msg("found competitive sets")
			return file[key], nil
		}
	}
	for _, key := range keys {
		if strings.Contains(NormalizeName(key), name) {
			c.logger.Info().
				Str("name", name).
				Str("matched", key).
				Str("format", formatID).
				Msg("found sets by partial match")
			return file[key], nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no sets in %s", ErrNotFound, name, formatID)
}

// FindAcrossTiers locates every format in a generation where a species
// has published sets, scanning in priority order with bounded batches.
// Found locations are remembered so the next search for the same
// species skips the scan.
func (c *Client) FindAcrossTiers(ctx context.Context, name, generation string) ([]TierSets, error) {
	name = NormalizeName(name)
	gen, err := NormalizeGeneration(generation)
	if err != nil {
		return nil, err
	}

	locator := cache.Key("tier_location:" + gen + ":" + name)
	if payload, ok := c.cacheGet(ctx, locator); ok {
		var tiers []string
		if err := json.Unmarshal(payload, &tiers); err == nil && len(tiers) > 0 {
			return c.fetchKnownTiers(ctx, name, gen, tiers)
		}
	}

	formats := FormatsFor(gen)
	c.logger.Info().
		Str("name", name).
		Str("generation", gen).
		Int("formats", len(formats)).
		Msg("searching formats")

	var found []TierSets
	for start := 0; start < len(formats); start += c.cfg.BatchSize {
		if start > 0 {
			if err := c.sleep(ctx, c.cfg.BatchDelay); err != nil {
				return nil, err
			}
		}
		batch := formats[start:min(start+c.cfg.BatchSize, len(formats))]
		results := make([]SetList, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for i, tier := range batch {
			g.Go(func() error {
				sets, err := c.GetSets(gctx, name, gen, tier)
				if err != nil {
					// Formats without the species or with a failing
					// upstream drop out of the scan.
					if !errors.Is(err, ErrNotFound) {
						c.logger.Debug().Err(err).Str("format", gen+tier).Msg("format scan failed")
					}
					return nil
				}
				results[i] = sets
				return nil
			})
		}
		_ = g.Wait()
		for i, sets := range results {
			if sets != nil {
				found = append(found, TierSets{Tier: batch[i], Sets: sets})
			}
		}
	}

	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, gen)
	}
	tiers := make([]string, len(found))
	for i, f := range found {
		tiers[i] = f.Tier
	}
	c.cachePut(ctx, locator, tiers)
	return found, nil
}

// fetchKnownTiers re-reads sets for formats a previous search located.
// Locations that have gone stale drop out of the result.
func (c *Client) fetchKnownTiers(ctx context.Context, name, gen string, tiers []string) ([]TierSets, error) {
	c.logger.Info().
		Str("name", name).
		Str("generation", gen).
		Strs("tiers", tiers).
		Msg("using cached tier locations")
	var found []TierSets
	for _, tier := range tiers {
		sets, err := c.GetSets(ctx, name, gen, tier)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		found = append(found, TierSets{Tier: tier, Sets: sets})
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, gen)
	}
	return found, nil
}
