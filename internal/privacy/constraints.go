package privacy

import (
	"github.com/sirupsen/logrus"

	"github.com/inferloop/anonkl/pkg/models"
)

// CheckResult is the outcome of checking one partition.
type CheckResult struct {
	KSatisfied bool `json:"k_satisfied"`
	LSatisfied bool `json:"l_satisfied"`

	// Violating holds every record of a class failing k or l.
	Violating []*models.Record `json:"-"`

	KViolations int `json:"k_violating_classes"`
	LViolations int `json:"l_violating_classes"`
}

// Satisfied reports whether both constraints hold.
func (c CheckResult) Satisfied() bool {
	return c.KSatisfied && c.LSatisfied
}

// Checker evaluates k-anonymity and distinct l-diversity together.
type Checker struct {
	k *KAnonymityChecker
	l *LDiversityChecker
}

// NewChecker builds a checker for k and l. l <= 1 disables the l-diversity
// check.
func NewChecker(k, l int, logger *logrus.Logger) *Checker {
	if logger == nil {
		logger = logrus.New()
	}

	return &Checker{
		k: NewKAnonymityChecker(&KAnonymityConfig{K: k}, logger),
		l: NewLDiversityChecker(&LDiversityConfig{L: l}, logger),
	}
}

// Check evaluates a partition. Violating keeps the partition order.
func (c *Checker) Check(classes []*EquivalenceClass) CheckResult {
	kViolating := c.k.Violations(classes)
	lViolating := c.l.Violations(classes)

	result := CheckResult{
		KSatisfied:  len(kViolating) == 0,
		LSatisfied:  len(lViolating) == 0,
		KViolations: len(kViolating),
		LViolations: len(lViolating),
	}

	failing := make(map[*EquivalenceClass]struct{}, len(kViolating)+len(lViolating))
	for _, class := range kViolating {
		failing[class] = struct{}{}
	}
	for _, class := range lViolating {
		failing[class] = struct{}{}
	}
	for _, class := range classes {
		if _, ok := failing[class]; ok {
			result.Violating = append(result.Violating, class.Records...)
		}
	}

	return result
}

// Check evaluates k-anonymity and distinct l-diversity over a partition.
// l <= 1 disables the l-diversity check.
func Check(classes []*EquivalenceClass, k, l int) CheckResult {
	return NewChecker(k, l, nil).Check(classes)
}
