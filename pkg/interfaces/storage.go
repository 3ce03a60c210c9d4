package interfaces

import (
	"context"
	"io"

	"github.com/inferloop/anonkl/pkg/models"
)

// ArtifactStore persists exported files (anonymized CSV, reports, charts).
type ArtifactStore interface {
	// Name returns the storage type
	Name() string

	// Put stores body under key and returns the location it was written to
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)

	// Close releases resources held by the store
	Close() error
}

// ReportStore persists run reports.
type ReportStore interface {
	// SaveRun inserts or replaces a run report
	SaveRun(ctx context.Context, report *models.RunReport) error

	// ListRuns returns the most recent reports, newest first
	ListRuns(ctx context.Context, limit int) ([]*models.RunReport, error)

	// Close releases resources held by the store
	Close() error
}
