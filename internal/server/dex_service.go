package server

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/lox/dexbot/internal/dex"
)

// DexService bridges lookup messages to the dex gateway client. Scope is
// the generation-default namespace a request resolves against: "game:<id>"
// for connections seated in a game, "global" otherwise.
type DexService struct {
	client *dex.Client
	logger *log.Logger
}

// NewDexService creates a new dex service around an existing client.
func NewDexService(client *dex.Client, logger *log.Logger) *DexService {
	return &DexService{
		client: client,
		logger: logger.WithPrefix("dex-service"),
	}
}

// LookupSets fetches the competitive sets for one format.
func (ds *DexService) LookupSets(ctx context.Context, scope string, data LookupSetsData) (*SetsResultData, error) {
	name, err := dex.ValidateName(data.Name)
	if err != nil {
		return nil, err
	}

	generation, err := ds.resolveGeneration(ctx, scope, data.Generation)
	if err != nil {
		return nil, err
	}
	tier := dex.NormalizeTier(data.Tier)

	sets, err := ds.client.GetSets(ctx, name, generation, tier)
	if err != nil {
		return nil, err
	}

	return &SetsResultData{
		Name:       dex.DisplayName(dex.NormalizeName(name)),
		Generation: generation,
		Tier:       tier,
		Format:     dex.FormatTitle(generation, tier),
		DexURL:     dex.SmogonDexURL(name, generation, tier),
		Sets:       sets,
	}, nil
}

// SearchTiers scans a generation's formats for any sets a Pokemon has.
func (ds *DexService) SearchTiers(ctx context.Context, scope string, data SearchTiersData) (*SearchResultData, error) {
	name, err := dex.ValidateName(data.Name)
	if err != nil {
		return nil, err
	}

	generation, err := ds.resolveGeneration(ctx, scope, data.Generation)
	if err != nil {
		return nil, err
	}

	tiers, err := ds.client.FindAcrossTiers(ctx, name, generation)
	if err != nil {
		return nil, err
	}

	return &SearchResultData{
		Name:       dex.DisplayName(dex.NormalizeName(name)),
		Generation: generation,
		Tiers:      tiers,
	}, nil
}

// LookupYield fetches a Pokemon's EV yield.
func (ds *DexService) LookupYield(ctx context.Context, data LookupYieldData) (*YieldResultData, error) {
	name, err := dex.ValidateName(data.Name)
	if err != nil {
		return nil, err
	}

	yield, err := ds.client.GetEVYield(ctx, name)
	if err != nil {
		return nil, err
	}

	return &YieldResultData{Yield: yield, Display: yield.FormatYields()}, nil
}

// LookupSprite fetches a generation-appropriate sprite.
func (ds *DexService) LookupSprite(ctx context.Context, scope string, data LookupSpriteData) (*SpriteResultData, error) {
	name, err := dex.ValidateName(data.Name)
	if err != nil {
		return nil, err
	}

	generation := data.Generation
	if generation == 0 {
		n, err := dex.GenerationNumber(ds.client.DefaultGenerationFor(ctx, scope))
		if err != nil {
			n = dex.MaxGeneration
		}
		generation = n
	}

	sprite, err := ds.client.GetSprite(ctx, name, data.Shiny, generation)
	if err != nil {
		return nil, err
	}

	return &SpriteResultData{Sprite: sprite}, nil
}

// SetGeneration updates the default generation for a scope.
func (ds *DexService) SetGeneration(ctx context.Context, scope string, data SetGenerationData) (*GenerationSetData, error) {
	canonical, err := ds.client.SetDefaultGeneration(ctx, scope, data.Generation)
	if err != nil {
		return nil, err
	}

	ds.logger.Info("Default generation updated", "scope", scope, "generation", canonical)
	return &GenerationSetData{Scope: scope, Generation: canonical}, nil
}

// Stats reports cache, breaker and in-flight coordinator counters.
func (ds *DexService) Stats(ctx context.Context) (*CacheStatsResultData, error) {
	stats, err := ds.client.CacheStats(ctx)
	if err != nil {
		return nil, err
	}

	return &CacheStatsResultData{
		Cache:    stats,
		Breakers: ds.client.BreakerStats(),
		Flight:   ds.client.FlightStats(),
	}, nil
}

// Suggestions returns close name matches, for enriching not-found errors.
func (ds *DexService) Suggestions(ctx context.Context, name string) []string {
	return ds.client.Suggest(ctx, dex.SanitizeName(name))
}

// resolveGeneration normalizes an explicit generation, falling back to the
// scope's configured default when none was given.
func (ds *DexService) resolveGeneration(ctx context.Context, scope, generation string) (string, error) {
	if generation == "" {
		return ds.client.DefaultGenerationFor(ctx, scope), nil
	}
	return dex.NormalizeGeneration(generation)
}
