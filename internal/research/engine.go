// Package research turns ambiguous hardware product identifiers into
// confidence-scored lifecycle records. The pipeline is query
// generation, web search, pattern-based date extraction, source trust
// classification, and multi-source confidence scoring.
package research

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lifecycle-cli/internal/model"
	"github.com/sells-group/lifecycle-cli/internal/resilience"
	"github.com/sells-group/lifecycle-cli/pkg/google"
)

// Searcher issues one web query and returns raw hits. Implementations
// must be safe for concurrent use.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.RawHit, error)
}

// GoogleSearcher adapts the Custom Search client to the Searcher
// interface, capping hits per query.
type GoogleSearcher struct {
	client  google.Client
	maxHits int
}

// NewGoogleSearcher wraps a Custom Search client. maxHits <= 0 keeps
// every returned item.
func NewGoogleSearcher(client google.Client, maxHits int) *GoogleSearcher {
	return &GoogleSearcher{client: client, maxHits: maxHits}
}

func (s *GoogleSearcher) Search(ctx context.Context, query string) ([]model.RawHit, error) {
	resp, err := s.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	items := resp.Items
	if s.maxHits > 0 && len(items) > s.maxHits {
		items = items[:s.maxHits]
	}
	hits := make([]model.RawHit, 0, len(items))
	for _, it := range items {
		hits = append(hits, model.RawHit{SourceURL: it.Link, Snippet: it.Snippet})
	}
	return hits, nil
}

// Engine is the research facade: it owns query generation, searching
// with retries, extraction, and scoring for a single product.
type Engine struct {
	searcher Searcher
	queries  *QueryBuilder
	extract  *Extractor
	retry    resilience.RetryConfig
	now      func() time.Time
	// manual holds human-entered date candidates keyed by product ID.
	// They join the scored candidate pool at manual_entry trust.
	manual map[string][]model.DateCandidate
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithNow overrides the clock used for current-product checks. Tests
// use this to pin time.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRetryConfig overrides the search retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) EngineOption {
	return func(e *Engine) {
		e.retry = cfg
	}
}

// WithManualCandidates registers human-entered date candidates for a
// product. Their SourceType is forced to manual_entry.
func WithManualCandidates(productID string, candidates ...model.DateCandidate) EngineOption {
	return func(e *Engine) {
		for i := range candidates {
			candidates[i].SourceType = model.SourceManualEntry
		}
		e.manual[productID] = append(e.manual[productID], candidates...)
	}
}

// NewEngine builds an engine from the vendor rules. Nil rules use the
// compiled-in defaults.
func NewEngine(searcher Searcher, rules *Rules, maxQueries int, opts ...EngineOption) (*Engine, error) {
	extractor, err := NewExtractor(nil, NewClassifier(rules))
	if err != nil {
		return nil, err
	}
	builder, err := NewQueryBuilder(rules, maxQueries)
	if err != nil {
		return nil, err
	}
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("google", "custom_search")
	e := &Engine{
		searcher: searcher,
		queries:  builder,
		extract:  extractor,
		retry:    cfg,
		now:      time.Now,
		manual:   make(map[string][]model.DateCandidate),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// PerformResearch resolves one product into a lifecycle record. Search
// failures are folded into the record rather than returned; the only
// error a caller sees is a QueryGenerationError for an unusable
// product ID. Given a deterministic Searcher the output is fully
// deterministic.
func (e *Engine) PerformResearch(ctx context.Context, p model.Product) (*model.LifecycleRecord, error) {
	queries, err := e.queries.Build(p)
	if err != nil {
		return nil, err
	}

	var hits []model.RawHit
	failed := 0
	lastKind := model.ErrorKindNone
	for _, q := range queries {
		if ctx.Err() != nil {
			failed++
			lastKind = model.ErrorKindSearchTransient
			continue
		}
		qHits, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) ([]model.RawHit, error) {
			return e.searcher.Search(ctx, q)
		})
		if err != nil {
			failed++
			if resilience.IsPermanent(err) {
				lastKind = model.ErrorKindSearchPermanent
			} else {
				lastKind = model.ErrorKindSearchTransient
			}
			zap.L().Warn("search query failed",
				zap.String("product_id", p.ProductID),
				zap.String("query", q),
				zap.Error(err))
			continue
		}
		hits = append(hits, qHits...)
	}

	manual := e.manual[p.ProductID]
	if failed == len(queries) && len(manual) == 0 {
		return model.EmptyRecord(p, lastKind), nil
	}

	candidates := e.extract.Extract(p.Manufacturer, hits)
	candidates = append(candidates, manual...)

	fields, counts, err := Score(p.ProductID, candidates)
	if err != nil {
		zap.L().Error("candidate aggregation failed",
			zap.String("product_id", p.ProductID),
			zap.Error(err))
		return model.EmptyRecord(p, model.ErrorKindAggregation), nil
	}

	return &model.LifecycleRecord{
		ProductID:         p.ProductID,
		Product:           p,
		Fields:            fields,
		OverallConfidence: OverallConfidence(fields),
		DataSourceCounts:  counts,
		IsCurrentProduct:  e.isCurrent(fields),
	}, nil
}

// isCurrent reports whether the product is still orderable: no end of
// sale found, or end of sale in the future.
func (e *Engine) isCurrent(fields map[model.Field]model.FieldValue) bool {
	eos := fields[model.FieldEndOfSale]
	return eos.Value == nil || eos.Value.After(e.now())
}
