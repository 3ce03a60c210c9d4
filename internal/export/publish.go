package export

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/anonkl/internal/privacy"
	"github.com/inferloop/anonkl/internal/reporting"
	"github.com/inferloop/anonkl/pkg/interfaces"
	"github.com/inferloop/anonkl/pkg/models"
)

// Publish exports a run to store and records its report in reports. Either
// store or reports may be nil to skip that step.
func (ee *ExportEngine) Publish(ctx context.Context, store interfaces.ArtifactStore, reports interfaces.ReportStore, result *privacy.Result) (*models.RunReport, error) {
	report := reporting.NewRunReport(result)

	if store != nil {
		files, err := ee.ExportRun(ctx, store, result)
		for _, file := range files {
			report.Artifacts = append(report.Artifacts, file.Location)
		}
		if err != nil {
			return report, err
		}
	}

	if reports != nil {
		if err := reports.SaveRun(ctx, report); err != nil {
			return report, err
		}
		ee.logger.WithFields(logrus.Fields{
			"run_id": report.RunID,
			"status": report.Status,
		}).Info("Run report saved")
	}

	return report, nil
}
