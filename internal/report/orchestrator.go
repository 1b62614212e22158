package report

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lifecycle-cli/internal/model"
	"github.com/sells-group/lifecycle-cli/internal/store"
)

// Progress percentages for the fixed pipeline steps. Product research
// fills the span between researchStart and researchEnd, one tick per
// processed product.
const (
	progressFetching      = 5
	progressResearchStart = 10
	progressResearchEnd   = 95
)

// Engine resolves one product into a lifecycle record.
type Engine interface {
	PerformResearch(ctx context.Context, p model.Product) (*model.LifecycleRecord, error)
}

// Result is the caller-facing outcome of one report run.
type Result struct {
	ReportID   string                  `json:"report_id"`
	Status     model.ReportStatus      `json:"status"`
	Statistics model.Statistics        `json:"statistics"`
	Filename   string                  `json:"filename"`
	Payload    []byte                  `json:"-"`
	Records    []model.LifecycleRecord `json:"records"`
}

// Orchestrator runs the per-job report pipeline: fetch products,
// research with bounded parallelism, aggregate, write. Construct one
// per process and share it; distinct reports run independently.
type Orchestrator struct {
	store         store.Store
	engine        Engine
	writer        Writer
	progress      *ProgressRegistry
	maxConcurrent int
	riskWindow    time.Duration
	now           func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxConcurrent bounds simultaneous PerformResearch calls per
// report. Values below 1 fall back to the default of 4.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

// WithRiskWindow sets the near-term window for the critical risk
// statistic. A basis date inside the window, or already past, counts.
func WithRiskWindow(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.riskWindow = d
		}
	}
}

// WithClock overrides the clock. Tests use this to pin time.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator wires the pipeline. The registry may be shared with
// the transport layer that streams progress to clients.
func NewOrchestrator(st store.Store, engine Engine, writer Writer, progress *ProgressRegistry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:         st,
		engine:        engine,
		writer:        writer,
		progress:      progress,
		maxConcurrent: 4,
		riskWindow:    365 * 24 * time.Hour,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Progress exposes the registry for transports that subscribe clients.
func (o *Orchestrator) Progress() *ProgressRegistry {
	return o.progress
}

// NewReportID mints a report identifier. Callers that run
// GenerateReportWithID asynchronously mint the ID first so they can
// hand it to clients before the run finishes.
func NewReportID() string {
	return "rpt_" + uuid.New().String()
}

// GenerateReport runs the full pipeline for one job. Every requested
// product yields exactly one record even when its research fails; the
// only error returned to the caller is a job-level one (unknown job,
// persistence, writer).
func (o *Orchestrator) GenerateReport(ctx context.Context, jobID string, opts model.ReportOptions) (*Result, error) {
	return o.GenerateReportWithID(ctx, NewReportID(), jobID, opts)
}

// GenerateReportWithID is GenerateReport with a caller-supplied report ID.
func (o *Orchestrator) GenerateReportWithID(ctx context.Context, reportID, jobID string, opts model.ReportOptions) (*Result, error) {
	// Persistence survives a consumer disconnect: a cancelled request
	// context stops research scheduling, not the status writes.
	persist := context.WithoutCancel(ctx)

	if _, err := o.store.CreateReport(persist, reportID, jobID, opts); err != nil {
		return nil, eris.Wrapf(err, "report: create %s", reportID)
	}
	defer o.progress.Unregister(reportID)

	o.transition(persist, reportID, model.ReportFetchingProducts, progressFetching, "")

	products, err := o.store.GetProducts(persist, jobID)
	if err != nil {
		o.fail(persist, reportID, err)
		return nil, eris.Wrapf(err, "report: fetch products for job %s", jobID)
	}

	o.transition(persist, reportID, model.ReportResearching, progressResearchStart, "")

	records := o.researchAll(ctx, persist, reportID, products)

	o.transition(persist, reportID, model.ReportAggregating, progressResearchEnd, "")

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Product.Index < records[j].Product.Index
	})

	stats, atRisk := o.aggregate(records, opts)

	status := model.ReportCompleted
	for _, rec := range records {
		if rec.ResearchError != model.ErrorKindNone {
			status = model.ReportCompletedWithErrors
			break
		}
	}

	filename, payload, err := o.writer.Write(ReportData{
		Records:     records,
		AtRisk:      atRisk,
		Statistics:  stats,
		Options:     opts,
		GeneratedAt: o.now(),
	})
	if err != nil {
		o.fail(persist, reportID, err)
		return nil, eris.Wrapf(err, "report: write %s", reportID)
	}

	if err := o.store.SaveReportResult(persist, reportID, status, &stats, filename, ""); err != nil {
		return nil, eris.Wrapf(err, "report: save result %s", reportID)
	}
	o.notify(reportID, string(status), 100, "")

	zap.L().Info("report generated",
		zap.String("report_id", reportID),
		zap.String("job_id", jobID),
		zap.String("status", string(status)),
		zap.Int("products", len(products)))

	return &Result{
		ReportID:   reportID,
		Status:     status,
		Statistics: stats,
		Filename:   filename,
		Payload:    payload,
		Records:    records,
	}, nil
}

// researchAll runs the engine across all products with bounded
// parallelism. A cancelled context stops scheduling unstarted products
// and annotates their records as skipped; the slice always holds one
// record per product.
func (o *Orchestrator) researchAll(ctx, persist context.Context, reportID string, products []model.Product) []model.LifecycleRecord {
	records := make([]model.LifecycleRecord, len(products))
	total := len(products)

	var mu sync.Mutex
	processed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrent)

	for i, p := range products {
		if ctx.Err() != nil {
			records[i] = *model.EmptyRecord(p, model.ErrorKindSkipped)
			continue
		}
		g.Go(func() error {
			var rec *model.LifecycleRecord
			switch {
			case gctx.Err() != nil:
				rec = model.EmptyRecord(p, model.ErrorKindSkipped)
			default:
				var err error
				rec, err = o.engine.PerformResearch(gctx, p)
				if err != nil {
					zap.L().Warn("product research failed",
						zap.String("report_id", reportID),
						zap.String("product_id", p.ProductID),
						zap.Error(err))
					rec = model.EmptyRecord(p, model.ErrorKindQueryGeneration)
				}
			}
			records[i] = *rec

			mu.Lock()
			processed++
			percent := progressResearchStart
			if total > 0 {
				percent += processed * (progressResearchEnd - progressResearchStart) / total
			}
			mu.Unlock()

			if err := o.store.UpdateReportStatus(persist, reportID, model.ReportResearching, percent, string(model.ReportResearching)); err != nil {
				zap.L().Warn("progress persist failed", zap.String("report_id", reportID), zap.Error(err))
			}
			o.notify(reportID, string(model.ReportResearching), percent, p.ProductID)
			return nil
		})
	}
	_ = g.Wait()

	return records
}

// aggregate computes summary statistics and the per-record risk flags.
// A record is at critical risk when its basis date is inside the
// near-term window or already past.
func (o *Orchestrator) aggregate(records []model.LifecycleRecord, opts model.ReportOptions) (model.Statistics, []bool) {
	stats := model.Statistics{TotalProducts: len(records)}
	atRisk := make([]bool, len(records))

	basis := opts.BasisField()
	horizon := o.now().Add(o.riskWindow)

	for i, rec := range records {
		stats.TotalQuantity += rec.Product.Quantity
		if v := rec.FieldValueFor(basis).Value; v != nil && v.Before(horizon) {
			atRisk[i] = true
			stats.CriticalRiskCount++
		}
	}
	return stats, atRisk
}

func (o *Orchestrator) transition(ctx context.Context, reportID string, status model.ReportStatus, percent int, productID string) {
	if err := o.store.UpdateReportStatus(ctx, reportID, status, percent, string(status)); err != nil {
		zap.L().Warn("status persist failed",
			zap.String("report_id", reportID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
	o.notify(reportID, string(status), percent, productID)
}

func (o *Orchestrator) fail(ctx context.Context, reportID string, cause error) {
	if err := o.store.SaveReportResult(ctx, reportID, model.ReportFailed, nil, "", cause.Error()); err != nil {
		zap.L().Warn("failure persist failed", zap.String("report_id", reportID), zap.Error(err))
	}
	o.notify(reportID, string(model.ReportFailed), 100, "")
}

func (o *Orchestrator) notify(reportID, step string, percent int, productID string) {
	o.progress.Notify(model.ProgressEvent{
		ReportID:         reportID,
		Step:             step,
		PercentComplete:  percent,
		CurrentProductID: productID,
	})
}
