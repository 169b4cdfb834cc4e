package dex

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Name length limits for lookups.
const (
	MinNameLength = 1
	MaxNameLength = 50
)

// ErrInvalidName rejects species names that are empty or too long after
// sanitizing.
var ErrInvalidName = errors.New("invalid name")

// NormalizeName canonicalizes a species name for API lookups: lowercase,
// trimmed, spaces replaced with hyphens.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// SanitizeName strips characters outside letters, digits, hyphens,
// underscores and spaces.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-', r == '_', r == ' ':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateName checks a species name against length limits after
// sanitizing. It returns the cleaned name.
func ValidateName(name string) (string, error) {
	cleaned := SanitizeName(name)
	if len(cleaned) < MinNameLength {
		return "", fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(cleaned) > MaxNameLength {
		return "", fmt.Errorf("%w: name is too long (max %d characters)", ErrInvalidName, MaxNameLength)
	}
	return cleaned, nil
}

// specialNames maps normalized names whose display form cannot be
// derived by capitalization.
var specialNames = map[string]string{
	"nidoran-f": "Nidoran♀",
	"nidoran-m": "Nidoran♂",
	"mr-mime":   "Mr. Mime",
	"mime-jr":   "Mime Jr.",
	"type-null": "Type: Null",
	"ho-oh":     "Ho-Oh",
	"porygon-z": "Porygon-Z",
	"jangmo-o":  "Jangmo-o",
	"hakamo-o":  "Hakamo-o",
	"kommo-o":   "Kommo-o",
}

// DisplayName renders a normalized species name for humans, for example
// "landorus-therian" becomes "Landorus-Therian".
func DisplayName(name string) string {
	if display, ok := specialNames[strings.ToLower(name)]; ok {
		return display
	}
	parts := strings.Split(name, "-")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
	}
	return strings.Join(parts, "-")
}

// Choice is a field that the sets API serves as either a single string
// or a list of interchangeable options.
type Choice []string

// UnmarshalJSON accepts both "Leftovers" and ["Leftovers", "Life Orb"].
func (c *Choice) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*c = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*c = Choice{single}
	return nil
}

// String joins the options with " / ".
func (c Choice) String() string {
	return strings.Join(c, " / ")
}

// Set is one competitive moveset as served by the sets API. Fields may
// be absent for some formats and generations.
type Set struct {
	Moves     []Choice       `json:"moves,omitempty"`
	Nature    Choice         `json:"nature,omitempty"`
	Item      Choice         `json:"item,omitempty"`
	Ability   Choice         `json:"ability,omitempty"`
	EVs       map[string]int `json:"evs,omitempty"`
	IVs       map[string]int `json:"ivs,omitempty"`
	TeraTypes Choice         `json:"teratypes,omitempty"`
	// TeraTypeLegacy absorbs the singular key some formats still use.
	TeraTypeLegacy Choice `json:"teratype,omitempty"`
	Level          int    `json:"level,omitempty"`
}

// Tera returns the set's tera type options, handling both the plural
// and the legacy singular API keys.
func (s Set) Tera() Choice {
	if len(s.TeraTypes) > 0 {
		return s.TeraTypes
	}
	return s.TeraTypeLegacy
}

// SetList maps set names to sets for one species in one format.
type SetList map[string]Set

// TierSets pairs a format id with the sets found there.
type TierSets struct {
	Tier string  `json:"tier"`
	Sets SetList `json:"sets"`
}

// EVYield is the effort values a species grants when defeated.
type EVYield struct {
	Name   string         `json:"name"`
	ID     int            `json:"id"`
	Yields map[string]int `json:"evYields"`
	Total  int            `json:"total"`
	Sprite string         `json:"sprite,omitempty"`
	Types  []string       `json:"types"`
}

// yieldAbbrev maps PokeAPI stat identifiers to display abbreviations.
var yieldAbbrev = map[string]string{
	"hp":              "HP",
	"attack":          "Atk",
	"defense":         "Def",
	"special-attack":  "SpA",
	"special-defense": "SpD",
	"speed":           "Spe",
}

// yieldOrder is the display order for EV yields.
var yieldOrder = [...]string{"hp", "attack", "defense", "special-attack", "special-defense", "speed"}

// FormatYields renders the non-zero yields, for example "+2 Spe" or
// "+1 Atk, +1 Spe".
func (y EVYield) FormatYields() string {
	var parts []string
	for _, stat := range yieldOrder {
		if v := y.Yields[stat]; v > 0 {
			parts = append(parts, fmt.Sprintf("+%d %s", v, yieldAbbrev[stat]))
		}
	}
	if len(parts) == 0 {
		return "No EVs"
	}
	return strings.Join(parts, ", ")
}

// Sprite is a resolved sprite image for a species.
type Sprite struct {
	URL        string `json:"spriteUrl"`
	Name       string `json:"name"`
	ID         int    `json:"id"`
	Shiny      bool   `json:"shiny"`
	Generation int    `json:"generation"`
}

// NotInGenerationError reports a sprite request for a generation before
// the species existed.
type NotInGenerationError struct {
	Name       string
	Introduced int
	Requested  int
}

func (e *NotInGenerationError) Error() string {
	return fmt.Sprintf("%s was introduced in gen %d, no gen %d sprite exists",
		e.Name, e.Introduced, e.Requested)
}

// statOrder is the standard competitive stat ordering.
var statOrder = [...]string{"hp", "atk", "def", "spa", "spd", "spe"}

// FormatEVs renders an EV spread in competitive syntax, for example
// "252 HP / 4 DEF / 252 SPE".
func FormatEVs(evs map[string]int) string {
	var parts []string
	for _, stat := range statOrder {
		if v, ok := evs[stat]; ok && v > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", v, strings.ToUpper(stat)))
		}
	}
	if len(parts) == 0 {
		return "No EVs specified"
	}
	return strings.Join(parts, " / ")
}

// FormatIVs renders the IVs that differ from the perfect 31, or ""
// when none do.
func FormatIVs(ivs map[string]int) string {
	var parts []string
	for _, stat := range statOrder {
		if v, ok := ivs[stat]; ok && v != 31 {
			parts = append(parts, fmt.Sprintf("%d %s", v, strings.ToUpper(stat)))
		}
	}
	return strings.Join(parts, " / ")
}

// FormatMoves renders move slots one per line, joining slot options
// with " / ".
func FormatMoves(moves []Choice) string {
	if len(moves) == 0 {
		return "No moves specified"
	}
	lines := make([]string, 0, len(moves))
	for _, slot := range moves {
		lines = append(lines, "• "+slot.String())
	}
	return strings.Join(lines, "\n")
}

// FormatItem renders an item choice, defaulting to "None".
func FormatItem(item Choice) string {
	if len(item) == 0 {
		return "None"
	}
	return item.String()
}

// FormatAbility renders an ability choice, defaulting to an em dash.
func FormatAbility(ability Choice) string {
	if len(ability) == 0 {
		return "—"
	}
	return ability.String()
}

// FormatNature renders a nature choice, defaulting to "Any".
func FormatNature(nature Choice) string {
	if len(nature) == 0 {
		return "Any"
	}
	return nature.String()
}
