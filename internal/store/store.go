// Package store persists jobs, their product lists, and report runs.
// Two backends exist: SQLite for single-machine CLI use and Postgres
// for the served deployment.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lifecycle-cli/internal/model"
)

// ErrJobNotFound is returned when a job ID does not exist. It is the
// only store failure that fails a whole report request.
var ErrJobNotFound = eris.New("store: job not found")

// ErrReportNotFound is returned when a report ID does not exist.
var ErrReportNotFound = eris.New("store: report not found")

// ReportFilter specifies criteria for listing reports.
type ReportFilter struct {
	JobID  string             `json:"job_id,omitempty"`
	Status model.ReportStatus `json:"status,omitempty"`
	Limit  int                `json:"limit,omitempty"`
	Offset int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for the research pipeline.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, customerName string) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	AddProducts(ctx context.Context, jobID string, products []model.Product) error
	GetProducts(ctx context.Context, jobID string) ([]model.Product, error)
	ListJobs(ctx context.Context, limit int) ([]model.Job, error)

	// Reports
	CreateReport(ctx context.Context, reportID, jobID string, opts model.ReportOptions) (*model.Report, error)
	UpdateReportStatus(ctx context.Context, reportID string, status model.ReportStatus, progress int, step string) error
	SaveReportResult(ctx context.Context, reportID string, status model.ReportStatus, stats *model.Statistics, filename, errMsg string) error
	GetReport(ctx context.Context, reportID string) (*model.Report, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]model.Report, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
