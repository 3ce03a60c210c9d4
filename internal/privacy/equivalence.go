package privacy

import (
	"strings"

	"github.com/inferloop/anonkl/pkg/models"
)

// EquivalenceClass is the set of records sharing the same generalized
// quasi-identifier tuple. It is a view over the records of one round and is
// never updated in place.
type EquivalenceClass struct {
	Key       string           `json:"key"`
	Values    []string         `json:"values"`
	Records   []*models.Record `json:"-"`
	Size      int              `json:"size"`
	Diversity int              `json:"sensitive_diversity"`
	Sensitive map[string]int   `json:"sensitive_counts"`
}

const keySeparator = "\x1f"

// ClassKey returns the grouping key of a record for the given quasi-identifiers.
func ClassKey(record *models.Record, qids []models.Attribute) string {
	values := make([]string, len(qids))
	for i, qi := range qids {
		values[i] = record.Value(qi)
	}
	return strings.Join(values, keySeparator)
}

// GroupClasses partitions records by their current quasi-identifier values and
// computes each class's size and number of distinct sensitive values. Classes
// are returned in the order their first record appears.
func GroupClasses(records []*models.Record, qids []models.Attribute, sensitive models.Attribute) []*EquivalenceClass {
	index := make(map[string]*EquivalenceClass)
	classes := make([]*EquivalenceClass, 0)

	for _, record := range records {
		key := ClassKey(record, qids)

		class, exists := index[key]
		if !exists {
			values := make([]string, len(qids))
			for i, qi := range qids {
				values[i] = record.Value(qi)
			}
			class = &EquivalenceClass{
				Key:       key,
				Values:    values,
				Sensitive: make(map[string]int),
			}
			index[key] = class
			classes = append(classes, class)
		}

		class.Records = append(class.Records, record)
		class.Size++
		class.Sensitive[record.Value(sensitive)]++
	}

	for _, class := range classes {
		class.Diversity = len(class.Sensitive)
	}

	return classes
}

// AnnotateClasses writes each class's size and diversity onto its records.
func AnnotateClasses(classes []*EquivalenceClass) {
	for _, class := range classes {
		for _, record := range class.Records {
			record.ClassSize = class.Size
			record.ClassDiversity = class.Diversity
		}
	}
}

// DiversityHistogram maps a distinct sensitive-value count to the number of
// classes having it.
func DiversityHistogram(classes []*EquivalenceClass) map[int]int {
	histogram := make(map[int]int)
	for _, class := range classes {
		histogram[class.Diversity]++
	}
	return histogram
}
