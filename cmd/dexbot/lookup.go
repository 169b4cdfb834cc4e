package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lox/dexbot/cmd/dexbot/shared"
	"github.com/lox/dexbot/internal/cache"
	"github.com/lox/dexbot/internal/dex"
	"github.com/lox/dexbot/internal/server"
)

// LookupCmd groups the one-shot lookups.
type LookupCmd struct {
	Sets   LookupSetsCmd   `cmd:"" help:"Show competitive sets for a Pokemon"`
	Search LookupSearchCmd `cmd:"" help:"Find a Pokemon across every tier of a generation"`
	Yield  LookupYieldCmd  `cmd:"" help:"Show EV yields for a Pokemon"`
	Sprite LookupSpriteCmd `cmd:"" help:"Show the sprite URL for a Pokemon"`
}

// lookupEnv is the client stack behind each one-shot lookup.
type lookupEnv struct {
	client *dex.Client
	store  *cache.Store
	ctx    context.Context
}

func openLookupEnv(configPath string, debug bool) (*lookupEnv, error) {
	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := shared.SetupLogger(debug)
	store, err := cache.Open(cfg.Cache.Path, logger, cfg.CacheConfig())
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	return &lookupEnv{
		client: dex.New(logger, store, cfg.DexConfig()),
		store:  store,
		ctx:    shared.SetupSignalHandler(),
	}, nil
}

func (e *lookupEnv) Close() {
	e.client.Close()
	_ = e.store.Close()
}

// withSuggestions enriches a not-found error with close name matches.
func (e *lookupEnv) withSuggestions(name string, err error) error {
	if errors.Is(err, dex.ErrNotFound) {
		if suggestions := e.client.Suggest(e.ctx, name); len(suggestions) > 0 {
			return fmt.Errorf("%w, did you mean %s?", err, strings.Join(suggestions, " or "))
		}
	}
	return err
}

// LookupSetsCmd shows the sets for one Pokemon in one format.
type LookupSetsCmd struct {
	Name       []string `arg:"" required:"" help:"Pokemon name"`
	Generation string   `short:"g" help:"Generation, gen1 through gen9 (default: configured scope default)"`
	Tier       string   `short:"t" help:"Tier, such as ou, ubers or vgc"`
	Config     string   `short:"c" default:"dexbot.hcl" help:"Path to HCL configuration file"`
	Debug      bool     `help:"Enable debug logging"`
}

func (c *LookupSetsCmd) Run() error {
	env, err := openLookupEnv(c.Config, c.Debug)
	if err != nil {
		return err
	}
	defer env.Close()

	name, err := dex.ValidateName(strings.Join(c.Name, " "))
	if err != nil {
		return err
	}
	generation, err := resolveCLIGeneration(env, c.Generation)
	if err != nil {
		return err
	}
	tier := dex.NormalizeTier(c.Tier)

	sets, err := env.client.GetSets(env.ctx, name, generation, tier)
	if err != nil {
		return env.withSuggestions(name, err)
	}

	fmt.Printf("%s  %s\n", dex.DisplayName(dex.NormalizeName(name)), dex.FormatTitle(generation, tier))
	fmt.Println(dex.SmogonDexURL(name, generation, tier))
	for _, setName := range sortedSetNames(sets) {
		printSet(setName, sets[setName])
	}
	return nil
}

// LookupSearchCmd scans every format of a generation.
type LookupSearchCmd struct {
	Name       []string `arg:"" required:"" help:"Pokemon name"`
	Generation string   `short:"g" help:"Generation, gen1 through gen9"`
	Config     string   `short:"c" default:"dexbot.hcl" help:"Path to HCL configuration file"`
	Debug      bool     `help:"Enable debug logging"`
}

func (c *LookupSearchCmd) Run() error {
	env, err := openLookupEnv(c.Config, c.Debug)
	if err != nil {
		return err
	}
	defer env.Close()

	name, err := dex.ValidateName(strings.Join(c.Name, " "))
	if err != nil {
		return err
	}
	generation, err := resolveCLIGeneration(env, c.Generation)
	if err != nil {
		return err
	}

	tiers, err := env.client.FindAcrossTiers(env.ctx, name, generation)
	if err != nil {
		return env.withSuggestions(name, err)
	}

	fmt.Printf("%s in Gen %s\n", dex.DisplayName(dex.NormalizeName(name)), strings.TrimPrefix(generation, "gen"))
	for _, tier := range tiers {
		fmt.Printf("  %s: %s\n", dex.FormatDisplayName(tier.Tier), strings.Join(sortedSetNames(tier.Sets), ", "))
	}
	return nil
}

// LookupYieldCmd shows EV yields.
type LookupYieldCmd struct {
	Name   []string `arg:"" required:"" help:"Pokemon name"`
	Config string   `short:"c" default:"dexbot.hcl" help:"Path to HCL configuration file"`
	Debug  bool     `help:"Enable debug logging"`
}

func (c *LookupYieldCmd) Run() error {
	env, err := openLookupEnv(c.Config, c.Debug)
	if err != nil {
		return err
	}
	defer env.Close()

	name, err := dex.ValidateName(strings.Join(c.Name, " "))
	if err != nil {
		return err
	}

	yield, err := env.client.GetEVYield(env.ctx, name)
	if err != nil {
		return env.withSuggestions(name, err)
	}

	fmt.Printf("%s (#%d)\n", yield.Name, yield.ID)
	fmt.Printf("  EV yield: %s\n", yield.FormatYields())
	if len(yield.Types) > 0 {
		fmt.Printf("  Type: %s\n", strings.Join(yield.Types, " / "))
	}
	return nil
}

// LookupSpriteCmd shows a sprite URL.
type LookupSpriteCmd struct {
	Name       []string `arg:"" required:"" help:"Pokemon name"`
	Shiny      bool     `help:"Request the shiny sprite"`
	Generation int      `short:"g" help:"Sprite generation, 1 through 9"`
	Config     string   `short:"c" default:"dexbot.hcl" help:"Path to HCL configuration file"`
	Debug      bool     `help:"Enable debug logging"`
}

func (c *LookupSpriteCmd) Run() error {
	env, err := openLookupEnv(c.Config, c.Debug)
	if err != nil {
		return err
	}
	defer env.Close()

	name, err := dex.ValidateName(strings.Join(c.Name, " "))
	if err != nil {
		return err
	}

	generation := c.Generation
	if generation == 0 {
		n, err := dex.GenerationNumber(env.client.DefaultGenerationFor(env.ctx, "global"))
		if err != nil {
			n = dex.MaxGeneration
		}
		generation = n
	}

	sprite, err := env.client.GetSprite(env.ctx, name, c.Shiny, generation)
	if err != nil {
		return env.withSuggestions(name, err)
	}

	fmt.Printf("%s (#%d, gen %d)\n", sprite.Name, sprite.ID, sprite.Generation)
	fmt.Println(sprite.URL)
	return nil
}

// resolveCLIGeneration normalizes an explicit generation, falling back to
// the global scope default.
func resolveCLIGeneration(env *lookupEnv, generation string) (string, error) {
	if generation == "" {
		return env.client.DefaultGenerationFor(env.ctx, "global"), nil
	}
	return dex.NormalizeGeneration(generation)
}

func sortedSetNames(sets dex.SetList) []string {
	names := make([]string, 0, len(sets))
	for name := range sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func printSet(name string, set dex.Set) {
	fmt.Printf("\n%s\n", name)
	fmt.Println(dex.FormatMoves(set.Moves))
	fmt.Printf("  Item: %s\n", dex.FormatItem(set.Item))
	fmt.Printf("  Ability: %s\n", dex.FormatAbility(set.Ability))
	if len(set.Nature) > 0 {
		fmt.Printf("  Nature: %s\n", set.Nature)
	}
	if len(set.EVs) > 0 {
		fmt.Printf("  EVs: %s\n", dex.FormatEVs(set.EVs))
	}
	if ivs := dex.FormatIVs(set.IVs); ivs != "" {
		fmt.Printf("  IVs: %s\n", ivs)
	}
	if tera := set.Tera(); len(tera) > 0 {
		fmt.Printf("  Tera: %s\n", tera)
	}
	if set.Level > 0 {
		fmt.Printf("  Level: %d\n", set.Level)
	}
}
