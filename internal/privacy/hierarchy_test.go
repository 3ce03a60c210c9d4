package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inferloop/anonkl/pkg/constants"
	"github.com/inferloop/anonkl/pkg/models"
)

func TestLocationHierarchyLevels(t *testing.T) {
	h := LocationHierarchy{}

	tests := []struct {
		level int
		want  string
	}{
		{0, "Centro/Fortaleza/CE"},
		{1, "Fortaleza/CE"},
		{2, "CE"},
		{3, constants.SuppressedValue},
		{7, constants.SuppressedValue},
	}

	for _, tt := range tests {
		g := h.Generalize("Centro/Fortaleza/CE", tt.level)
		assert.Equal(t, tt.want, g.Value, "level %d", tt.level)
		assert.False(t, g.Malformed)
	}
}

func TestBirthDateHierarchyLevels(t *testing.T) {
	h := BirthDateHierarchy{}

	assert.Equal(t, "01/01/1990", h.Generalize("01/01/1990", 0).Value)
	assert.Equal(t, "01/1990", h.Generalize("01/01/1990", 1).Value)
	assert.Equal(t, "1990", h.Generalize("01/01/1990", 2).Value)
	assert.Equal(t, constants.SuppressedValue, h.Generalize("01/01/1990", 3).Value)
}

func TestHierarchyMalformedInputFailsSoft(t *testing.T) {
	tests := []struct {
		name  string
		hier  Hierarchy
		value string
	}{
		{"empty location", LocationHierarchy{}, ""},
		{"too many location tokens", LocationHierarchy{}, "a/b/c/d"},
		{"empty location token", LocationHierarchy{}, "Centro//CE"},
		{"bad day", BirthDateHierarchy{}, "32/01/1990"},
		{"bad month", BirthDateHierarchy{}, "01/13/1990"},
		{"not a date", BirthDateHierarchy{}, "ontem"},
		{"missing separators", BirthDateHierarchy{}, "01011990"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for level := 0; level <= tt.hier.Depth(); level++ {
				g := tt.hier.Generalize(tt.value, level)
				assert.Equal(t, constants.SuppressedValue, g.Value)
				assert.True(t, g.Malformed)
				assert.Equal(t, tt.hier.Depth(), g.Level)
			}
		})
	}
}

func TestHierarchyIdempotence(t *testing.T) {
	for _, h := range []Hierarchy{LocationHierarchy{}, BirthDateHierarchy{}} {
		raw := "Centro/Fortaleza/CE"
		if h.Attribute() == models.AttributeBirthDate {
			raw = "15/08/1977"
		}

		for level := 0; level <= h.Depth(); level++ {
			once := h.Generalize(raw, level)
			for lower := 0; lower <= level; lower++ {
				again := h.Generalize(once.Value, lower)
				assert.Equal(t, once.Value, again.Value, "%s level %d then %d", h.Attribute(), level, lower)
				assert.Equal(t, once.Level, again.Level)
			}
		}

		top := h.Generalize(raw, h.Depth())
		assert.Equal(t, top, h.Generalize(top.Value, h.Depth()+5))
	}
}

func TestHierarchyLevelZeroRoundTrip(t *testing.T) {
	assert.Equal(t, Generalization{Value: "Joaquim Távora/Fortaleza/CE"},
		LocationHierarchy{}.Generalize("Joaquim Távora/Fortaleza/CE", 0))
	assert.Equal(t, Generalization{Value: "29/02/2000"},
		BirthDateHierarchy{}.Generalize("29/02/2000", 0))
}

func TestHierarchyInfersLevelFromShape(t *testing.T) {
	assert.Equal(t, 1, LocationHierarchy{}.Generalize("Fortaleza/CE", 0).Level)
	assert.Equal(t, 2, LocationHierarchy{}.Generalize("CE", 0).Level)
	assert.Equal(t, 1, BirthDateHierarchy{}.Generalize("08/1977", 0).Level)
	assert.Equal(t, 2, BirthDateHierarchy{}.Generalize("1977", 0).Level)
	assert.Equal(t, 3, BirthDateHierarchy{}.Generalize(constants.SuppressedValue, 0).Level)
}

func TestRaceColorHierarchy(t *testing.T) {
	h := RaceColorHierarchy{}

	assert.Equal(t, Generalization{Value: "PARDA"}, h.Generalize("parda", 0))
	assert.Equal(t, Generalization{Value: "INDÍGENA"}, h.Generalize("Indigena", 0))
	assert.Equal(t, Generalization{Value: constants.NoInformation, Level: 1}, h.Generalize("", 0))
	assert.Equal(t, Generalization{Value: constants.NoInformation, Level: 1}, h.Generalize("IGNORADO", 0))
	assert.Equal(t, Generalization{Value: constants.NoInformation, Level: 1}, h.Generalize("BRANCA", 1))
	assert.Equal(t, 6, SensitiveCategories())
}

func TestHierarchiesDepths(t *testing.T) {
	depths := DefaultHierarchies().Depths()

	assert.Equal(t, 3, depths[models.AttributeLocation])
	assert.Equal(t, 3, depths[models.AttributeBirthDate])
	assert.Equal(t, 1, depths[models.AttributeRaceColor])
	assert.Equal(t, Generalization{Value: "x"}, DefaultHierarchies().Generalize("other", "x", 2))
}
