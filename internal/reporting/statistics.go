package reporting

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/anonkl/internal/privacy"
)

// ClassSummary describes one equivalence class of the final partition.
type ClassSummary struct {
	Values    []string `json:"values"`
	Size      int      `json:"size"`
	Diversity int      `json:"sensitive_diversity"`
}

// Summary aggregates the equivalence classes of a run.
type Summary struct {
	Records            int            `json:"records"`
	Classes            int            `json:"classes"`
	MeanClassSize      float64        `json:"mean_class_size"`
	StdDevClassSize    float64        `json:"stddev_class_size"`
	MedianClassSize    float64        `json:"median_class_size"`
	MinClassSize       float64        `json:"min_class_size"`
	MaxClassSize       float64        `json:"max_class_size"`
	MeanDiversity      float64        `json:"mean_sensitive_diversity"`
	DiversityHistogram map[int]int    `json:"diversity_histogram"`
	TopClasses         []ClassSummary `json:"top_classes"`
}

// DefaultTopClasses is the number of largest classes kept in a summary.
const DefaultTopClasses = 10

// Summarize computes class-size and diversity statistics for the classes of
// a result.
func Summarize(result *privacy.Result, top int) Summary {
	return SummarizeClasses(result.Classes, top)
}

// SummarizeClasses computes statistics over classes. Empty input yields a
// zero summary.
func SummarizeClasses(classes []*privacy.EquivalenceClass, top int) Summary {
	summary := Summary{
		Classes:            len(classes),
		DiversityHistogram: privacy.DiversityHistogram(classes),
		TopClasses:         TopClasses(classes, top),
	}
	if len(classes) == 0 {
		return summary
	}

	sizes := make([]float64, len(classes))
	diversity := make([]float64, len(classes))
	for i, class := range classes {
		sizes[i] = float64(class.Size)
		diversity[i] = float64(class.Diversity)
		summary.Records += class.Size
	}
	sort.Float64s(sizes)

	summary.MeanClassSize = stat.Mean(sizes, nil)
	if len(sizes) > 1 {
		summary.StdDevClassSize = stat.StdDev(sizes, nil)
	}
	summary.MedianClassSize = stat.Quantile(0.5, stat.Empirical, sizes, nil)
	summary.MinClassSize = floats.Min(sizes)
	summary.MaxClassSize = floats.Max(sizes)
	summary.MeanDiversity = stat.Mean(diversity, nil)

	return summary
}

// TopClasses returns the n largest classes, ties kept in partition order.
func TopClasses(classes []*privacy.EquivalenceClass, n int) []ClassSummary {
	ordered := make([]*privacy.EquivalenceClass, len(classes))
	copy(ordered, classes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Size > ordered[j].Size
	})

	if n <= 0 || n > len(ordered) {
		n = len(ordered)
	}

	top := make([]ClassSummary, n)
	for i := 0; i < n; i++ {
		top[i] = ClassSummary{
			Values:    ordered[i].Values,
			Size:      ordered[i].Size,
			Diversity: ordered[i].Diversity,
		}
	}
	return top
}
