package privacy

import (
	"strings"
	"time"

	"github.com/inferloop/anonkl/pkg/constants"
	"github.com/inferloop/anonkl/pkg/models"
)

// Generalization is the outcome of generalizing one value. Malformed marks
// values that could not be parsed and were replaced by the suppression
// sentinel; the caller is expected to count them.
type Generalization struct {
	Value     string `json:"value"`
	Level     int    `json:"level"`
	Malformed bool   `json:"malformed,omitempty"`
}

// Hierarchy maps a value and a generalization level to a coarser value.
//
// Implementations are shape aware: a value that is already generalized to
// level c is returned unchanged for any level <= c, which makes Generalize
// idempotent and lets Generalize(v, 0).Level recover the level of a value
// whose tracked level was lost.
type Hierarchy interface {
	Attribute() models.Attribute
	Depth() int
	Generalize(value string, level int) Generalization
}

// Categorical is implemented by hierarchies whose generalized values come from
// a closed set. Categories bounds the l a sensitive attribute can reach.
type Categorical interface {
	Categories() int
}

// Hierarchies indexes hierarchies by attribute.
type Hierarchies map[models.Attribute]Hierarchy

// DefaultHierarchies returns the location, date of birth and race/color
// hierarchies.
func DefaultHierarchies() Hierarchies {
	return Hierarchies{
		models.AttributeLocation:  LocationHierarchy{},
		models.AttributeBirthDate: BirthDateHierarchy{},
		models.AttributeRaceColor: RaceColorHierarchy{},
	}
}

// Depths returns the hierarchy depth of every attribute.
func (h Hierarchies) Depths() map[models.Attribute]int {
	depths := make(map[models.Attribute]int, len(h))
	for attr, hier := range h {
		depths[attr] = hier.Depth()
	}
	return depths
}

// Generalize applies the hierarchy registered for attr. Attributes without a
// hierarchy are returned unchanged at level 0.
func (h Hierarchies) Generalize(attr models.Attribute, value string, level int) Generalization {
	hier, ok := h[attr]
	if !ok {
		return Generalization{Value: value}
	}
	return hier.Generalize(value, level)
}

func suppressed(depth int, malformed bool) Generalization {
	return Generalization{Value: constants.SuppressedValue, Level: depth, Malformed: malformed}
}

// pathHierarchy generalizes "/"-separated paths by dropping leading tokens,
// most specific first.
type pathHierarchy struct {
	depth    int
	validate func(tokens []string) bool
}

func (p pathHierarchy) generalize(value string, level int) Generalization {
	value = strings.TrimSpace(value)
	if value == constants.SuppressedValue {
		return suppressed(p.depth, false)
	}
	if value == "" {
		return suppressed(p.depth, true)
	}

	tokens := strings.Split(value, "/")
	if len(tokens) > p.depth {
		return suppressed(p.depth, true)
	}
	for i := range tokens {
		tokens[i] = strings.TrimSpace(tokens[i])
		if tokens[i] == "" {
			return suppressed(p.depth, true)
		}
	}
	if p.validate != nil && !p.validate(tokens) {
		return suppressed(p.depth, true)
	}

	current := p.depth - len(tokens)
	if level <= current {
		return Generalization{Value: strings.Join(tokens, "/"), Level: current}
	}
	if level >= p.depth {
		return suppressed(p.depth, false)
	}
	return Generalization{Value: strings.Join(tokens[level-current:], "/"), Level: level}
}

// LocationHierarchy generalizes bairro/cidade/estado paths:
// level 1 keeps cidade/estado, level 2 keeps estado, level 3 suppresses.
type LocationHierarchy struct{}

func (LocationHierarchy) Attribute() models.Attribute { return models.AttributeLocation }
func (LocationHierarchy) Depth() int                  { return constants.LocationDepth }

func (LocationHierarchy) Generalize(value string, level int) Generalization {
	return pathHierarchy{depth: constants.LocationDepth}.generalize(value, level)
}

// BirthDateHierarchy generalizes dd/mm/aaaa dates to mm/aaaa, aaaa and
// finally the suppression sentinel.
type BirthDateHierarchy struct{}

func (BirthDateHierarchy) Attribute() models.Attribute { return models.AttributeBirthDate }
func (BirthDateHierarchy) Depth() int                  { return constants.BirthDateDepth }

func (BirthDateHierarchy) Generalize(value string, level int) Generalization {
	return pathHierarchy{depth: constants.BirthDateDepth, validate: validDateTokens}.generalize(value, level)
}

var dateLayouts = map[int]string{
	3: "02/01/2006",
	2: "01/2006",
	1: "2006",
}

func validDateTokens(tokens []string) bool {
	layout, ok := dateLayouts[len(tokens)]
	if !ok {
		return false
	}
	_, err := time.Parse(layout, strings.Join(tokens, "/"))
	return err == nil
}

// RaceColorHierarchy is the binary race/color generalization: known
// categories stay at level 0, anything else (missing included) becomes
// NoInformation at level 1.
type RaceColorHierarchy struct{}

func (RaceColorHierarchy) Attribute() models.Attribute { return models.AttributeRaceColor }
func (RaceColorHierarchy) Depth() int                  { return constants.RaceColorDepth }
func (RaceColorHierarchy) Categories() int             { return SensitiveCategories() }

func (RaceColorHierarchy) Generalize(value string, level int) Generalization {
	if level <= 0 {
		if canonical, ok := CanonicalRaceColor(value); ok {
			return Generalization{Value: canonical}
		}
	}
	return Generalization{Value: constants.NoInformation, Level: constants.RaceColorDepth}
}

// CanonicalRaceColor returns the upper-case known category matching value.
func CanonicalRaceColor(value string) (string, bool) {
	v := strings.ToUpper(strings.TrimSpace(value))
	for _, known := range constants.KnownRaceColors {
		if v == known {
			return known, true
		}
	}
	// INDIGENA is a frequent unaccented spelling
	if v == "INDIGENA" {
		return "INDÍGENA", true
	}
	return "", false
}

// SensitiveCategories is the number of distinct race/color values a record can
// carry after normalization.
func SensitiveCategories() int {
	return len(constants.KnownRaceColors) + 1
}
