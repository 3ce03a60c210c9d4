package helpers

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inferloop/anonkl/pkg/models"
)

// AssertFloatEquals asserts that two floats are equal within tolerance
func AssertFloatEquals(t *testing.T, expected, actual, tolerance float64, msgAndArgs ...interface{}) {
	t.Helper()

	if math.IsNaN(expected) && math.IsNaN(actual) {
		return
	}

	diff := math.Abs(expected - actual)
	assert.True(t, diff <= tolerance,
		"expected %f to be within %f of %f (diff: %f). %s",
		actual, tolerance, expected, diff, fmt.Sprint(msgAndArgs...))
}

// groups partitions records by their current values of qids, independently
// of the code under test.
func groups(records []*models.Record, qids []models.Attribute) map[string][]*models.Record {
	out := make(map[string][]*models.Record)
	for _, r := range records {
		parts := make([]string, len(qids))
		for i, qi := range qids {
			parts[i] = r.Value(qi)
		}
		key := strings.Join(parts, "|")
		out[key] = append(out[key], r)
	}
	return out
}

// AssertKAnonymous asserts every group of records sharing qids has at least k members.
func AssertKAnonymous(t *testing.T, records []*models.Record, qids []models.Attribute, k int) {
	t.Helper()

	for key, group := range groups(records, qids) {
		assert.GreaterOrEqual(t, len(group), k, "class %q is smaller than k=%d", key, k)
	}
}

// AssertLDiverse asserts every group carries at least l distinct sensitive values.
func AssertLDiverse(t *testing.T, records []*models.Record, qids []models.Attribute, sensitive models.Attribute, l int) {
	t.Helper()

	for key, group := range groups(records, qids) {
		distinct := make(map[string]struct{})
		for _, r := range group {
			distinct[r.Value(sensitive)] = struct{}{}
		}
		assert.GreaterOrEqual(t, len(distinct), l, "class %q has fewer than l=%d sensitive values", key, l)
	}
}

// AssertClassColumns asserts the class_size and class_sensitive_diversity
// columns agree with the actual grouping.
func AssertClassColumns(t *testing.T, records []*models.Record, qids []models.Attribute, sensitive models.Attribute) {
	t.Helper()

	for key, group := range groups(records, qids) {
		distinct := make(map[string]struct{})
		for _, r := range group {
			distinct[r.Value(sensitive)] = struct{}{}
		}
		for _, r := range group {
			assert.Equal(t, len(group), r.ClassSize, "class_size of record %d in %q", r.Index, key)
			assert.Equal(t, len(distinct), r.ClassDiversity, "class diversity of record %d in %q", r.Index, key)
		}
	}
}
