package privacy

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/anonkl/pkg/constants"
	"github.com/inferloop/anonkl/pkg/models"
	"github.com/inferloop/anonkl/tests/helpers"
)

func TestGroupClasses(t *testing.T) {
	dataset := helpers.NewDataset(
		helpers.Row{Location: constants.SuppressedValue, BirthDate: "1990", RaceColor: "PARDA"},
		helpers.Row{Location: "CE", BirthDate: "1990", RaceColor: "PARDA"},
		helpers.Row{Location: constants.SuppressedValue, BirthDate: "1990", RaceColor: "PRETA"},
		helpers.Row{Location: "CE", BirthDate: "1990", RaceColor: "PARDA"},
	)

	classes := GroupClasses(dataset.Records, DefaultQuasiIdentifiers(), models.AttributeRaceColor)
	require.Len(t, classes, 2)

	assert.Equal(t, []string{constants.SuppressedValue, "1990"}, classes[0].Values)
	assert.Equal(t, 2, classes[0].Size)
	assert.Equal(t, 2, classes[0].Diversity)

	assert.Equal(t, []string{"CE", "1990"}, classes[1].Values)
	assert.Equal(t, 2, classes[1].Size)
	assert.Equal(t, 1, classes[1].Diversity)

	assert.Equal(t, map[int]int{1: 1, 2: 1}, DiversityHistogram(classes))

	AnnotateClasses(classes)
	helpers.AssertClassColumns(t, dataset.Records, DefaultQuasiIdentifiers(), models.AttributeRaceColor)
}

func TestCheckReturnsUnionOfViolations(t *testing.T) {
	dataset := helpers.NewDataset(
		// size 3, one sensitive value: fails l only
		helpers.Row{Location: "A/B/C", BirthDate: "01/01/1990", RaceColor: "PARDA"},
		helpers.Row{Location: "A/B/C", BirthDate: "01/01/1990", RaceColor: "PARDA"},
		helpers.Row{Location: "A/B/C", BirthDate: "01/01/1990", RaceColor: "PARDA"},
		// size 1: fails k and l
		helpers.Row{Location: "D/E/F", BirthDate: "02/02/1990", RaceColor: "PRETA"},
		// size 2, diverse: fails k only
		helpers.Row{Location: "G/H/I", BirthDate: "03/03/1990", RaceColor: "PRETA"},
		helpers.Row{Location: "G/H/I", BirthDate: "03/03/1990", RaceColor: "BRANCA"},
		// size 3, diverse: compliant
		helpers.Row{Location: "J/K/L", BirthDate: "04/04/1990", RaceColor: "PRETA"},
		helpers.Row{Location: "J/K/L", BirthDate: "04/04/1990", RaceColor: "BRANCA"},
		helpers.Row{Location: "J/K/L", BirthDate: "04/04/1990", RaceColor: "BRANCA"},
	)

	classes := GroupClasses(dataset.Records, DefaultQuasiIdentifiers(), models.AttributeRaceColor)
	result := Check(classes, 3, 2)

	assert.False(t, result.KSatisfied)
	assert.False(t, result.LSatisfied)
	assert.False(t, result.Satisfied())
	assert.Equal(t, 2, result.KViolations)
	assert.Equal(t, 2, result.LViolations)
	assert.Len(t, result.Violating, 6)

	kOnly := Check(classes, 1, 1)
	assert.True(t, kOnly.Satisfied())
	assert.Empty(t, kOnly.Violating)
}

func TestCheckerLogsViolationsAtDebug(t *testing.T) {
	dataset := helpers.NewDataset(
		helpers.Row{Location: "A/B/C", BirthDate: "01/01/1990", RaceColor: "PARDA"},
		helpers.Row{Location: "A/B/C", BirthDate: "01/01/1990", RaceColor: "PARDA"},
		helpers.Row{Location: "D/E/F", BirthDate: "02/02/1990", RaceColor: "PRETA"},
	)
	classes := GroupClasses(dataset.Records, DefaultQuasiIdentifiers(), models.AttributeRaceColor)

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)

	result := NewChecker(2, 2, logger).Check(classes)
	assert.Equal(t, 1, result.KViolations)
	assert.Equal(t, 2, result.LViolations)
	assert.Len(t, result.Violating, 3)
	assert.Equal(t, result, Check(classes, 2, 2))

	output := buf.String()
	assert.Contains(t, output, `"msg":"k-anonymity violated"`)
	assert.Contains(t, output, `"smallest_class":1`)
	assert.Contains(t, output, `"msg":"l-diversity violated"`)
	assert.Contains(t, output, `"violating_classes":2`)

	buf.Reset()
	assert.True(t, NewChecker(1, 1, logger).Check(classes).Satisfied())
	assert.Empty(t, buf.String())
}

func TestCheckEmptyPartition(t *testing.T) {
	result := Check(nil, 5, 3)
	assert.True(t, result.Satisfied())
}

func TestKAnonymityChecker(t *testing.T) {
	checker := NewKAnonymityChecker(&KAnonymityConfig{
		K:                2,
		QuasiIdentifiers: DefaultQuasiIdentifiers(),
		Sensitive:        models.AttributeRaceColor,
	}, helpers.NewTestLogger())

	dataset := helpers.NewDataset(
		helpers.Row{Location: "CE", BirthDate: "1990", RaceColor: "PARDA"},
		helpers.Row{Location: "CE", BirthDate: "1990", RaceColor: "PRETA"},
		helpers.Row{Location: "CE", BirthDate: "1991", RaceColor: "PRETA"},
	)

	ok, err := checker.ValidateKAnonymity(dataset.Records)
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "less than k=2")

	ok, err = checker.ValidateKAnonymity(dataset.Records[:2])
	assert.True(t, ok)
	assert.NoError(t, err)
}

func TestLDiversityChecker(t *testing.T) {
	dataset := helpers.NewDataset(
		helpers.Row{Location: "CE", BirthDate: "1990", RaceColor: "PARDA"},
		helpers.Row{Location: "CE", BirthDate: "1990", RaceColor: "PARDA"},
	)

	disabled := NewLDiversityChecker(nil, nil)
	assert.False(t, disabled.Enabled())
	ok, err := disabled.ValidateLDiversity(dataset.Records)
	assert.True(t, ok)
	assert.NoError(t, err)

	checker := NewLDiversityChecker(&LDiversityConfig{
		L:                2,
		QuasiIdentifiers: DefaultQuasiIdentifiers(),
		Sensitive:        models.AttributeRaceColor,
	}, helpers.NewTestLogger())

	ok, err = checker.ValidateLDiversity(dataset.Records)
	assert.False(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "less than l=2")
}
