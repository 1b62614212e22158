package model

import "time"

// ReportStatus is the orchestrator state machine for one report.
type ReportStatus string

const (
	ReportQueued              ReportStatus = "queued"
	ReportFetchingProducts    ReportStatus = "fetching_products"
	ReportResearching         ReportStatus = "researching"
	ReportAggregating         ReportStatus = "aggregating"
	ReportCompleted           ReportStatus = "completed"
	ReportCompletedWithErrors ReportStatus = "completed_with_errors"
	ReportFailed              ReportStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s ReportStatus) Terminal() bool {
	switch s {
	case ReportCompleted, ReportCompletedWithErrors, ReportFailed:
		return true
	}
	return false
}

// Job is a batch of products uploaded for research.
type Job struct {
	ID           string    `json:"id"`
	CustomerName string    `json:"customer_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReportOptions configures a report run. EOLYearBasis selects which
// lifecycle field drives the risk statistics ("lastDayOfSupport" or
// "endOfSale").
type ReportOptions struct {
	EOLYearBasis           string `json:"eol_year_basis"`
	CustomerName           string `json:"customer_name,omitempty"`
	IncludeCharts          bool   `json:"include_charts"`
	IncludeRecommendations bool   `json:"include_recommendations"`
}

// BasisField maps the option name to a lifecycle field. Unknown names
// fall back to last day of support.
func (o ReportOptions) BasisField() Field {
	if o.EOLYearBasis == "endOfSale" {
		return FieldEndOfSale
	}
	return FieldLastDayOfSupport
}

// Statistics summarizes a completed report.
type Statistics struct {
	TotalProducts     int `json:"total_products"`
	TotalQuantity     int `json:"total_quantity"`
	CriticalRiskCount int `json:"critical_risk_count"`
}

// Report is the persisted state of one report run.
type Report struct {
	ID          string        `json:"id"`
	JobID       string        `json:"job_id"`
	Status      ReportStatus  `json:"status"`
	Progress    int           `json:"progress"`
	CurrentStep string        `json:"current_step,omitempty"`
	Options     ReportOptions `json:"options"`
	Statistics  *Statistics   `json:"statistics,omitempty"`
	Filename    string        `json:"filename,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// ProgressEvent is delivered to progress subscribers once per processed
// product and on step transitions. PercentComplete is monotonically
// non-decreasing within a report.
type ProgressEvent struct {
	ReportID         string `json:"report_id"`
	Step             string `json:"step"`
	PercentComplete  int    `json:"percent_complete"`
	CurrentProductID string `json:"current_product_id,omitempty"`
}
