package dex

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MaxGeneration is the newest supported game generation.
const MaxGeneration = 9

// DefaultGeneration is used when a caller does not specify one.
const DefaultGeneration = "gen9"

// DefaultTier is used when a caller does not specify one.
const DefaultTier = "ou"

// ErrInvalidGeneration is returned for generation strings outside gen1
// through gen9.
var ErrInvalidGeneration = fmt.Errorf("invalid generation")

// generationAliases maps accepted generation spellings to canonical ids.
var generationAliases = map[string]string{
	"gen1": "gen1", "gen2": "gen2", "gen3": "gen3",
	"gen4": "gen4", "gen5": "gen5", "gen6": "gen6",
	"gen7": "gen7", "gen8": "gen8", "gen9": "gen9",
	"1": "gen1", "2": "gen2", "3": "gen3",
	"4": "gen4", "5": "gen5", "6": "gen6",
	"7": "gen7", "8": "gen8", "9": "gen9",
}

// tierAliases maps accepted tier spellings to canonical format ids.
var tierAliases = map[string]string{
	"ou":           "ou",
	"uu":           "uu",
	"ru":           "ru",
	"nu":           "nu",
	"pu":           "pu",
	"zu":           "zu",
	"ubers":        "ubers",
	"uubers":       "uubers",
	"lc":           "lc",
	"littlecup":    "lc",
	"vgc":          "vgc2025regh",
	"vgc2025":      "vgc2025regh",
	"doubles":      "doublesou",
	"doublesou":    "doublesou",
	"dou":          "doublesou",
	"1v1":          "1v1",
	"monotype":     "monotype",
	"ag":           "ag",
	"anythinggoes": "ag",
	"cap":          "cap",
	"nationaldex":  "nationaldex",
	"natdex":       "nationaldex",
	"nfe":          "nfe",
}

// formatsByGen lists each generation's formats ordered by popularity.
// Tier searches walk these in order so common formats resolve first.
var formatsByGen = map[string][]string{
	"gen9": {
		"ou", "ubers", "nationaldex", "uu", "doublesou", "ru", "nu", "pu",
		"lc", "monotype", "1v1", "vgc2025regh", "zu", "cap", "ag",
	},
	"gen8": {
		"ou", "ubers", "uu", "doublesou", "ru", "nu", "pu", "lc",
		"monotype", "1v1", "nationaldex", "vgc2021", "zu", "cap", "ag",
	},
	"gen7": {
		"ou", "ubers", "uu", "doublesou", "ru", "nu", "pu", "lc",
		"monotype", "1v1", "vgc2019", "zu", "ag",
	},
	"gen6": {
		"ou", "ubers", "uu", "doublesou", "ru", "nu", "pu", "lc",
		"monotype", "1v1", "vgc2016", "ag",
	},
	"gen5": {"ou", "ubers", "uu", "doublesou", "ru", "nu", "lc", "monotype"},
	"gen4": {"ou", "ubers", "uu", "ru", "nu", "lc"},
	"gen3": {"ou", "ubers", "uu", "nu", "lc"},
	"gen2": {"ou", "ubers", "uu", "nu"},
	"gen1": {"ou", "ubers", "uu"},
}

// PriorityFormats is the fallback search order for generations without a
// known format list.
var PriorityFormats = []string{"ou", "ubers", "uu", "doublesou"}

// formatNames maps format ids to full display names.
var formatNames = map[string]string{
	"ou":          "OverUsed",
	"uu":          "UnderUsed",
	"ru":          "RarelyUsed",
	"nu":          "NeverUsed",
	"pu":          "PU",
	"zu":          "ZeroUsed",
	"lc":          "Little Cup",
	"ag":          "Anything Goes",
	"ubers":       "Ubers",
	"uubers":      "UUbers",
	"doublesou":   "Doubles OU",
	"1v1":         "1v1",
	"monotype":    "Monotype",
	"cap":         "CAP",
	"nationaldex": "National Dex",
	"vgc2025regh": "VGC 2025 Reg H",
	"vgc2021":     "VGC 2021",
	"vgc2019":     "VGC 2019",
	"vgc2016":     "VGC 2016",
	"nfe":         "NFE",
}

// dexGens maps generation ids to Smogon dex game codes.
var dexGens = map[string]string{
	"gen1": "rb", "gen2": "gs", "gen3": "rs",
	"gen4": "dp", "gen5": "bw", "gen6": "xy",
	"gen7": "sm", "gen8": "ss", "gen9": "sv",
}

// NormalizeGeneration canonicalizes a generation string. Both "9" and
// "gen9" normalize to "gen9"; an empty string selects the default.
func NormalizeGeneration(generation string) (string, error) {
	if generation == "" {
		return DefaultGeneration, nil
	}
	normalized, ok := generationAliases[strings.ToLower(strings.TrimSpace(generation))]
	if !ok {
		return "", fmt.Errorf("%w: %q (valid: %s)", ErrInvalidGeneration, generation, validGenerations())
	}
	return normalized, nil
}

func validGenerations() string {
	seen := make(map[string]bool)
	var gens []string
	for _, g := range generationAliases {
		if !seen[g] {
			seen[g] = true
			gens = append(gens, g)
		}
	}
	sort.Strings(gens)
	return strings.Join(gens, ", ")
}

// GenerationNumber normalizes a generation string and returns its numeric
// part, so "gen5" and "5" both yield 5.
func GenerationNumber(generation string) (int, error) {
	gen, err := NormalizeGeneration(generation)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimPrefix(gen, "gen"))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidGeneration, generation)
	}
	return n, nil
}

// NormalizeTier canonicalizes a tier string, resolving aliases like
// "dou" or "natdex". An empty string selects the default; unknown tiers
// pass through lowercased since format availability varies by
// generation.
func NormalizeTier(tier string) string {
	t := strings.ToLower(strings.TrimSpace(tier))
	if t == "" {
		return DefaultTier
	}
	if canonical, ok := tierAliases[t]; ok {
		return canonical
	}
	return t
}

// FormatsFor returns the ordered format list for a generation, falling
// back to the priority formats for unknown generations.
func FormatsFor(generation string) []string {
	if formats, ok := formatsByGen[generation]; ok {
		return formats
	}
	return PriorityFormats
}

// FormatDisplayName returns the full display name for a format id, or
// the uppercased id when no name is known.
func FormatDisplayName(tier string) string {
	if name, ok := formatNames[strings.ToLower(tier)]; ok {
		return name
	}
	return strings.ToUpper(tier)
}

// FormatTitle renders a generation and tier for display, for example
// "Gen 9 OU (OverUsed)".
func FormatTitle(generation, tier string) string {
	genNum := strings.TrimPrefix(generation, "gen")
	upper := strings.ToUpper(tier)
	if name, ok := formatNames[strings.ToLower(tier)]; ok {
		return fmt.Sprintf("Gen %s %s (%s)", genNum, upper, name)
	}
	return fmt.Sprintf("Gen %s %s", genNum, upper)
}

// DexGameCode returns the Smogon dex game code for a generation, such as
// "sv" for gen9. Unknown generations return the newest code.
func DexGameCode(generation string) string {
	if code, ok := dexGens[generation]; ok {
		return code
	}
	return dexGens[DefaultGeneration]
}

// SmogonDexURL builds the public dex analysis link for a species in a
// format.
func SmogonDexURL(name, generation, tier string) string {
	return fmt.Sprintf("https://www.smogon.com/dex/%s/pokemon/%s/%s/",
		DexGameCode(generation), NormalizeName(name), NormalizeTier(tier))
}
