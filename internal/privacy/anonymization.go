package privacy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/anonkl/pkg/constants"
	"github.com/inferloop/anonkl/pkg/errors"
	"github.com/inferloop/anonkl/pkg/models"
)

// Status is the terminal state of an anonymization run.
type Status string

const (
	StatusSuccess    Status = constants.StatusSuccess
	StatusFailure    Status = constants.StatusFailure
	StatusSuppressed Status = constants.StatusSuppressed
	StatusEmpty      Status = constants.StatusEmpty
)

// RunConfig parameterizes a single run.
type RunConfig struct {
	K int `json:"k"`
	L int `json:"l"`

	// MaxLevels caps the generalization level per quasi-identifier. Missing
	// entries default to the hierarchy depth.
	MaxLevels map[models.Attribute]int `json:"max_levels,omitempty"`

	// SuppressViolations drops the records of still-violating classes when
	// the search is exhausted.
	SuppressViolations bool `json:"suppress_violations"`

	QuasiIdentifiers []models.Attribute `json:"quasi_identifiers,omitempty"`
	Sensitive        models.Attribute   `json:"sensitive_attribute,omitempty"`
}

// QualityReport counts values the hierarchies could not parse.
type QualityReport struct {
	Malformed        map[models.Attribute]int `json:"malformed"`
	MalformedRecords []int                    `json:"malformed_records,omitempty"`
	MissingSensitive int                      `json:"missing_sensitive"`
}

// TotalMalformed returns the number of malformed values over all attributes.
func (q QualityReport) TotalMalformed() int {
	total := 0
	for _, n := range q.Malformed {
		total += n
	}
	return total
}

// RoundStats describes one iteration of the search.
type RoundStats struct {
	Round       int  `json:"round"`
	Classes     int  `json:"classes"`
	Violating   int  `json:"violating_records"`
	Advanced    int  `json:"advanced_records"`
	KSatisfied  bool `json:"k_satisfied"`
	LSatisfied  bool `json:"l_satisfied"`
	KViolations int  `json:"k_violating_classes"`
	LViolations int  `json:"l_violating_classes"`
}

// Result is the structured outcome of a run. Dataset is owned by the caller
// once returned.
type Result struct {
	RunID  string    `json:"run_id"`
	Config RunConfig `json:"config"`
	Status Status    `json:"status"`

	KSatisfied bool `json:"k_satisfied"`
	LSatisfied bool `json:"l_satisfied"`

	// Level is the round at which the search terminated.
	Level  int          `json:"level"`
	Rounds []RoundStats `json:"rounds"`

	Dataset            *models.Dataset     `json:"-"`
	Classes            []*EquivalenceClass `json:"-"`
	DiversityHistogram map[int]int         `json:"diversity_histogram"`
	Precision          PrecisionReport     `json:"precision"`
	Quality            QualityReport       `json:"quality"`
	SuppressedRecords  int                 `json:"suppressed_records"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Succeeded reports whether the output satisfies both constraints.
func (r *Result) Succeeded() bool {
	return r.Status == StatusSuccess || r.Status == StatusSuppressed
}

// Err converts a non-successful status into a typed error.
func (r *Result) Err() error {
	switch r.Status {
	case StatusFailure:
		failed := "k-anonymity"
		switch {
		case !r.KSatisfied && !r.LSatisfied:
			failed = "k-anonymity and l-diversity"
		case r.KSatisfied:
			failed = "l-diversity"
		}
		err := errors.NewPrivacyError(errors.CodeConstraintUnreachable,
			fmt.Sprintf("%s not reached for k=%d, l=%d after %d rounds", failed, r.Config.K, r.Config.L, r.Level))
		err.Cause = errors.ErrConstraintUnreachable
		return err.WithContext("k_satisfied", r.KSatisfied).WithContext("l_satisfied", r.LSatisfied)
	case StatusEmpty:
		return emptyOutputError(r.Config.K, r.Config.L)
	}
	return nil
}

func emptyOutputError(kValue, lValue int) *errors.AppError {
	err := errors.NewPrivacyError(errors.CodeEmptyOutput,
		fmt.Sprintf("no records left after suppressing classes violating k=%d, l=%d", kValue, lValue))
	err.Cause = errors.ErrEmptyOutput
	return err.WithContext("k", kValue).WithContext("l", lValue)
}

// Observer receives every finished run.
type Observer interface {
	ObserveRun(result *Result)
}

// Anonymizer drives the generalization search. It keeps no per-run state and
// may be shared by independent runs.
type Anonymizer struct {
	hierarchies Hierarchies
	logger      *logrus.Logger
	observer    Observer
}

func NewAnonymizer(hierarchies Hierarchies, logger *logrus.Logger) *Anonymizer {
	if hierarchies == nil {
		hierarchies = DefaultHierarchies()
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Anonymizer{
		hierarchies: hierarchies,
		logger:      logger,
	}
}

// WithObserver attaches an observer notified after each run.
func (a *Anonymizer) WithObserver(observer Observer) *Anonymizer {
	a.observer = observer
	return a
}

// Hierarchies returns the hierarchies used by the anonymizer.
func (a *Anonymizer) Hierarchies() Hierarchies {
	return a.hierarchies
}

// Normalize fills defaults from the hierarchies.
func (a *Anonymizer) Normalize(config RunConfig) RunConfig {
	if len(config.QuasiIdentifiers) == 0 {
		config.QuasiIdentifiers = DefaultQuasiIdentifiers()
	}
	if config.Sensitive == "" {
		config.Sensitive = models.AttributeRaceColor
	}

	maxLevels := make(map[models.Attribute]int, len(config.QuasiIdentifiers))
	for _, qi := range config.QuasiIdentifiers {
		depth := 0
		if hier, ok := a.hierarchies[qi]; ok {
			depth = hier.Depth()
		}
		maxLevel, ok := config.MaxLevels[qi]
		if !ok || maxLevel > depth {
			maxLevel = depth
		}
		maxLevels[qi] = maxLevel
	}
	config.MaxLevels = maxLevels

	return config
}

// Validate checks a normalized configuration.
func (a *Anonymizer) Validate(config RunConfig) error {
	if config.K < 1 {
		return errors.NewConfigurationError(errors.CodeOutOfRange,
			fmt.Sprintf("k must be a positive integer, got %d", config.K))
	}
	if config.L < 0 {
		return errors.NewConfigurationError(errors.CodeOutOfRange,
			fmt.Sprintf("l must not be negative, got %d", config.L))
	}
	// Free-form sensitive attributes have no static bound; an unreachable l
	// ends the run with StatusFailure instead.
	if categorical, ok := a.hierarchies[config.Sensitive].(Categorical); ok && config.L > categorical.Categories() {
		return errors.NewConfigurationError(errors.CodeOutOfRange,
			fmt.Sprintf("l=%d exceeds the %d known %s categories", config.L, categorical.Categories(), config.Sensitive))
	}
	for _, qi := range config.QuasiIdentifiers {
		if _, ok := a.hierarchies[qi]; !ok {
			return errors.NewConfigurationError(errors.CodeInvalidInput,
				fmt.Sprintf("no generalization hierarchy for quasi-identifier %q", qi))
		}
		if config.MaxLevels[qi] < 0 {
			return errors.NewConfigurationError(errors.CodeOutOfRange,
				fmt.Sprintf("max level for %q must not be negative", qi))
		}
	}
	return nil
}

// Run anonymizes a copy of dataset until every class satisfies k and l or the
// maximum level is exhausted. The input dataset is never modified.
//
// The returned error is only set for invalid configuration or cancellation;
// unreachable constraints and empty output are reported through
// Result.Status.
func (a *Anonymizer) Run(ctx context.Context, dataset *models.Dataset, config RunConfig) (*Result, error) {
	config = a.Normalize(config)
	if err := a.Validate(config); err != nil {
		return nil, err
	}

	result := &Result{
		RunID:     uuid.New().String(),
		Config:    config,
		StartedAt: time.Now(),
		Quality:   QualityReport{Malformed: make(map[models.Attribute]int)},
	}

	logger := a.logger.WithFields(logrus.Fields{
		"run_id":  result.RunID,
		"k_value": config.K,
		"l_value": config.L,
	})
	logger.WithField("dataset_size", dataset.Len()).Info("Starting anonymization")

	work := dataset.Clone()
	a.prepare(work, config, result, logger)

	maxRound := 0
	for _, lvl := range config.MaxLevels {
		if lvl > maxRound {
			maxRound = lvl
		}
	}

	checker := NewChecker(config.K, config.L, a.logger)

	var check CheckResult
	for round := 0; ; round++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		classes := GroupClasses(work.Records, config.QuasiIdentifiers, config.Sensitive)
		check = checker.Check(classes)

		stats := RoundStats{
			Round:       round,
			Classes:     len(classes),
			Violating:   len(check.Violating),
			KSatisfied:  check.KSatisfied,
			LSatisfied:  check.LSatisfied,
			KViolations: check.KViolations,
			LViolations: check.LViolations,
		}
		result.Level = round

		if check.Satisfied() {
			result.Rounds = append(result.Rounds, stats)
			result.Status = StatusSuccess
			break
		}
		if round >= maxRound {
			result.Rounds = append(result.Rounds, stats)
			result.Status = StatusFailure
			break
		}

		for _, record := range check.Violating {
			if a.advance(record, config) {
				stats.Advanced++
			}
		}
		result.Rounds = append(result.Rounds, stats)

		logger.WithFields(logrus.Fields{
			"round":     round,
			"classes":   stats.Classes,
			"violating": stats.Violating,
			"advanced":  stats.Advanced,
		}).Debug("Generalized violating records")

		// Every violating record is already at its maximum level, so further
		// rounds would see the same partition.
		if stats.Advanced == 0 {
			result.Status = StatusFailure
			break
		}
	}

	result.KSatisfied = check.KSatisfied
	result.LSatisfied = check.LSatisfied

	if result.Status == StatusFailure && config.SuppressViolations {
		a.suppress(work, check.Violating, result)
	}

	a.finish(work, config, result)

	logger.WithFields(logrus.Fields{
		"status":    result.Status,
		"level":     result.Level,
		"precision": result.Precision.Precision,
		"classes":   result.Precision.ClassCount,
		"malformed": result.Quality.TotalMalformed(),
	}).Info("Anonymization finished")

	if a.observer != nil {
		a.observer.ObserveRun(result)
	}

	return result, nil
}

// prepare suppresses direct identifiers, normalizes the sensitive attribute
// and generalizes every quasi-identifier at level 0.
func (a *Anonymizer) prepare(work *models.Dataset, config RunConfig, result *Result, logger *logrus.Entry) {
	for _, record := range work.Records {
		SuppressIdentifiers(record)

		record.Generalized = make(map[models.Attribute]string, len(config.QuasiIdentifiers)+1)
		record.Levels = make(map[models.Attribute]int, len(config.QuasiIdentifiers))

		sensitive := a.hierarchies.Generalize(config.Sensitive, record.Raw(config.Sensitive), 0)
		record.Generalized[config.Sensitive] = sensitive.Value
		if sensitive.Level > 0 {
			result.Quality.MissingSensitive++
		}

		malformed := false
		for _, qi := range config.QuasiIdentifiers {
			g := a.hierarchies.Generalize(qi, record.Raw(qi), 0)
			// Raw input must be fully specific. A shorter value such as a bare
			// year or state has the wrong token count. A pre-suppressed "*" is kept.
			if !g.Malformed && g.Level > 0 && g.Value != constants.SuppressedValue {
				g = suppressed(a.hierarchies[qi].Depth(), true)
			}
			record.Generalized[qi] = g.Value
			record.Levels[qi] = g.Level
			if g.Malformed {
				malformed = true
				result.Quality.Malformed[qi]++
				logger.WithFields(logrus.Fields{
					"record":    record.Index,
					"attribute": qi,
				}).Warn("Malformed quasi-identifier suppressed")
			}
		}
		if malformed {
			result.Quality.MalformedRecords = append(result.Quality.MalformedRecords, record.Index)
		}
	}
}

// advance moves every quasi-identifier of a record one level up, in
// lockstep, without exceeding the configured maximum. It reports whether any
// attribute moved.
func (a *Anonymizer) advance(record *models.Record, config RunConfig) bool {
	moved := false
	for _, qi := range config.QuasiIdentifiers {
		current := record.Levels[qi]
		if current >= config.MaxLevels[qi] {
			continue
		}

		g := a.hierarchies.Generalize(qi, record.Raw(qi), current+1)
		if g.Level <= current {
			continue
		}
		record.Generalized[qi] = g.Value
		record.Levels[qi] = g.Level
		moved = true
	}
	return moved
}

func (a *Anonymizer) suppress(work *models.Dataset, violating []*models.Record, result *Result) {
	drop := make(map[*models.Record]struct{}, len(violating))
	for _, record := range violating {
		drop[record] = struct{}{}
	}

	kept := make([]*models.Record, 0, len(work.Records)-len(drop))
	for _, record := range work.Records {
		if _, ok := drop[record]; !ok {
			kept = append(kept, record)
		}
	}

	result.SuppressedRecords = len(work.Records) - len(kept)
	work.Records = kept

	if len(kept) == 0 {
		result.Status = StatusEmpty
		return
	}

	// The remaining classes are exactly the compliant ones.
	result.Status = StatusSuppressed
	result.KSatisfied = true
	result.LSatisfied = true
}

func (a *Anonymizer) finish(work *models.Dataset, config RunConfig, result *Result) {
	classes := GroupClasses(work.Records, config.QuasiIdentifiers, config.Sensitive)
	AnnotateClasses(classes)

	result.Dataset = work
	result.Classes = classes
	result.DiversityHistogram = DiversityHistogram(classes)

	depths := make(map[models.Attribute]int, len(config.QuasiIdentifiers))
	for _, qi := range config.QuasiIdentifiers {
		depths[qi] = a.hierarchies[qi].Depth()
	}
	result.Precision = NewScorer(a.hierarchies, config.QuasiIdentifiers, config.Sensitive).Score(work, depths)
	result.Duration = time.Since(result.StartedAt)
}

// SuppressIdentifiers replaces the direct identifiers with the suppression
// sentinel.
func SuppressIdentifiers(record *models.Record) {
	record.Name = constants.SuppressedValue
	record.CPF = constants.SuppressedValue
}
