package privacy

import (
	"github.com/inferloop/anonkl/pkg/models"
)

// PrecisionReport holds the information-loss metrics of a generalized dataset.
// Precision and Loss are on the 0-1 scale.
type PrecisionReport struct {
	Precision        float64 `json:"precision"`
	Loss             float64 `json:"loss"`
	Defined          bool    `json:"defined"`
	Records          int     `json:"records"`
	Attributes       int     `json:"attributes"`
	InferredLevels   int     `json:"inferred_levels"`
	ClassCount       int     `json:"class_count"`
	AverageClassSize float64 `json:"average_class_size"`
}

// Scorer computes precision as 1 minus the mean of level/depth over every
// (record, quasi-identifier) pair.
type Scorer struct {
	hierarchies Hierarchies
	qids        []models.Attribute
	sensitive   models.Attribute
}

func NewScorer(hierarchies Hierarchies, qids []models.Attribute, sensitive models.Attribute) *Scorer {
	if hierarchies == nil {
		hierarchies = DefaultHierarchies()
	}
	if len(qids) == 0 {
		qids = DefaultQuasiIdentifiers()
	}
	if sensitive == "" {
		sensitive = models.AttributeRaceColor
	}
	return &Scorer{hierarchies: hierarchies, qids: qids, sensitive: sensitive}
}

// Score measures the dataset against the given hierarchy depths. Tracked
// levels are used when present; otherwise the level is inferred from the
// value's shape. An empty dataset yields an undefined report with precision 0.
func (s *Scorer) Score(dataset *models.Dataset, depths map[models.Attribute]int) PrecisionReport {
	if depths == nil {
		depths = s.hierarchies.Depths()
	}

	report := PrecisionReport{Records: dataset.Len(), Attributes: len(s.qids)}
	if report.Records == 0 || report.Attributes == 0 {
		return report
	}

	totalLoss := 0.0
	for _, record := range dataset.Records {
		for _, qi := range s.qids {
			depth := depths[qi]
			if depth <= 0 {
				continue
			}

			level, tracked := record.Level(qi)
			if !tracked {
				level = s.hierarchies.Generalize(qi, record.Value(qi), 0).Level
				report.InferredLevels++
			}
			if level > depth {
				level = depth
			}
			totalLoss += float64(level) / float64(depth)
		}
	}

	report.Defined = true
	report.Loss = totalLoss / float64(report.Records*report.Attributes)
	report.Precision = 1 - report.Loss

	classes := GroupClasses(dataset.Records, s.qids, s.sensitive)
	report.ClassCount = len(classes)
	report.AverageClassSize = AverageClassSize(report.Records, report.ClassCount)

	return report
}

// AverageClassSize returns records / classes, or 0 when there are no classes.
func AverageClassSize(records, classes int) float64 {
	if classes == 0 {
		return 0
	}
	return float64(records) / float64(classes)
}
