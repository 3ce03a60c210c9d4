package privacy

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/anonkl/pkg/models"
)

type LDiversityConfig struct {
	L                int                `json:"l"`
	QuasiIdentifiers []models.Attribute `json:"quasi_identifiers"`
	Sensitive        models.Attribute   `json:"sensitive_attribute"`
}

// LDiversityChecker checks distinct l-diversity: every class must contain at
// least L distinct sensitive values. L <= 1 is always satisfied.
type LDiversityChecker struct {
	config *LDiversityConfig
	logger *logrus.Logger
}

func NewLDiversityChecker(config *LDiversityConfig, logger *logrus.Logger) *LDiversityChecker {
	if config == nil {
		config = getDefaultLDiversityConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &LDiversityChecker{
		config: config,
		logger: logger,
	}
}

// Enabled reports whether the checker constrains anything.
func (l *LDiversityChecker) Enabled() bool {
	return l.config.L > 1
}

func (l *LDiversityChecker) Satisfies(class *EquivalenceClass) bool {
	return class.Diversity >= l.config.L
}

// Violations returns the classes with fewer than l distinct sensitive values.
func (l *LDiversityChecker) Violations(classes []*EquivalenceClass) []*EquivalenceClass {
	if !l.Enabled() {
		return nil
	}

	var violating []*EquivalenceClass
	for _, class := range classes {
		if !l.Satisfies(class) {
			violating = append(violating, class)
		}
	}

	if len(violating) > 0 {
		l.logger.WithFields(logrus.Fields{
			"l_value":           l.config.L,
			"classes":           len(classes),
			"violating_classes": len(violating),
		}).Debug("l-diversity violated")
	}
	return violating
}

func (l *LDiversityChecker) ValidateLDiversity(records []*models.Record) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}

	classes := GroupClasses(records, l.config.QuasiIdentifiers, l.config.Sensitive)
	if violating := l.Violations(classes); len(violating) > 0 {
		class := violating[0]
		return false, fmt.Errorf("equivalence class %v has %d distinct %s values, less than l=%d",
			class.Values, class.Diversity, l.config.Sensitive, l.config.L)
	}

	return true, nil
}

func getDefaultLDiversityConfig() *LDiversityConfig {
	return &LDiversityConfig{
		L:                1,
		QuasiIdentifiers: DefaultQuasiIdentifiers(),
		Sensitive:        models.AttributeRaceColor,
	}
}
