package privacy

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/anonkl/pkg/models"
)

type KAnonymityConfig struct {
	K                int                `json:"k"`
	QuasiIdentifiers []models.Attribute `json:"quasi_identifiers"`
	Sensitive        models.Attribute   `json:"sensitive_attribute"`
}

// KAnonymityChecker checks that every equivalence class holds at least K
// records.
type KAnonymityChecker struct {
	config *KAnonymityConfig
	logger *logrus.Logger
}

func NewKAnonymityChecker(config *KAnonymityConfig, logger *logrus.Logger) *KAnonymityChecker {
	if config == nil {
		config = getDefaultKAnonymityConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &KAnonymityChecker{
		config: config,
		logger: logger,
	}
}

// Satisfies reports whether a single class meets k.
func (k *KAnonymityChecker) Satisfies(class *EquivalenceClass) bool {
	return class.Size >= k.config.K
}

// Violations returns the classes smaller than k.
func (k *KAnonymityChecker) Violations(classes []*EquivalenceClass) []*EquivalenceClass {
	var violating []*EquivalenceClass
	for _, class := range classes {
		if !k.Satisfies(class) {
			violating = append(violating, class)
		}
	}

	if len(violating) > 0 {
		k.logger.WithFields(logrus.Fields{
			"k_value":           k.config.K,
			"classes":           len(classes),
			"violating_classes": len(violating),
			"smallest_class":    smallestClass(violating),
		}).Debug("k-anonymity violated")
	}
	return violating
}

// ValidateKAnonymity groups the records by their current quasi-identifier
// values and reports the first class smaller than k.
func (k *KAnonymityChecker) ValidateKAnonymity(records []*models.Record) (bool, error) {
	classes := GroupClasses(records, k.config.QuasiIdentifiers, k.config.Sensitive)

	if violating := k.Violations(classes); len(violating) > 0 {
		class := violating[0]
		return false, fmt.Errorf("equivalence class %v has size %d, less than k=%d",
			class.Values, class.Size, k.config.K)
	}

	return true, nil
}

func smallestClass(classes []*EquivalenceClass) int {
	smallest := classes[0].Size
	for _, class := range classes[1:] {
		if class.Size < smallest {
			smallest = class.Size
		}
	}
	return smallest
}

func getDefaultKAnonymityConfig() *KAnonymityConfig {
	return &KAnonymityConfig{
		K:                2,
		QuasiIdentifiers: DefaultQuasiIdentifiers(),
		Sensitive:        models.AttributeRaceColor,
	}
}

// DefaultQuasiIdentifiers returns location and date of birth.
func DefaultQuasiIdentifiers() []models.Attribute {
	return []models.Attribute{models.AttributeLocation, models.AttributeBirthDate}
}
