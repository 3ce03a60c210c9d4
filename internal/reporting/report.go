package reporting

import (
	"github.com/inferloop/anonkl/internal/privacy"
	"github.com/inferloop/anonkl/pkg/models"
)

// NewRunReport flattens a result into its persisted form.
func NewRunReport(result *privacy.Result) *models.RunReport {
	return &models.RunReport{
		RunID:             result.RunID,
		K:                 result.Config.K,
		L:                 result.Config.L,
		Status:            string(result.Status),
		KSatisfied:        result.KSatisfied,
		LSatisfied:        result.LSatisfied,
		Level:             result.Level,
		Records:           result.Dataset.Len(),
		Classes:           len(result.Classes),
		SuppressedRecords: result.SuppressedRecords,
		MalformedValues:   result.Quality.TotalMalformed(),
		Precision:         result.Precision.Precision,
		PrecisionDefined:  result.Precision.Defined,
		AverageClassSize:  result.Precision.AverageClassSize,
		StartedAt:         result.StartedAt,
		DurationMillis:    result.Duration.Milliseconds(),
	}
}
