package research

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lifecycle-cli/internal/model"
	"github.com/sells-group/lifecycle-cli/internal/resilience"
)

// stubSearcher returns canned hits per query. Queries without an entry
// return no hits; queries in errs fail every time.
type stubSearcher struct {
	hits  map[string][]model.RawHit
	errs  map[string]error
	calls map[string]int
}

func newStubSearcher() *stubSearcher {
	return &stubSearcher{
		hits:  make(map[string][]model.RawHit),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (s *stubSearcher) Search(_ context.Context, query string) ([]model.RawHit, error) {
	s.calls[query]++
	if err, ok := s.errs[query]; ok {
		return nil, err
	}
	return s.hits[query], nil
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		JitterFraction: 0,
	}
}

func fixedNow() time.Time {
	return time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
}

func newTestEngine(t *testing.T, s Searcher, opts ...EngineOption) *Engine {
	t.Helper()
	opts = append([]EngineOption{WithRetryConfig(fastRetry()), WithNow(fixedNow)}, opts...)
	e, err := NewEngine(s, nil, 5, opts...)
	require.NoError(t, err)
	return e
}

func merakiProduct() model.Product {
	return model.Product{ProductID: "MR33-HW", Manufacturer: "Cisco Meraki", Quantity: 4}
}

func TestPerformResearch_PopulatedRecord(t *testing.T) {
	s := newStubSearcher()
	s.hits[`"MR33-HW" site:documentation.meraki.com`] = []model.RawHit{{
		SourceURL: "https://documentation.meraki.com/eol",
		Snippet:   "End-of-Sale Date: 31-Jan-2015",
	}}
	s.hits[`"MR33" Cisco Meraki "end of life"`] = []model.RawHit{{
		SourceURL: "https://reseller.example.com/mr33",
		Snippet:   "Last Date of Support: 30-Apr-2020",
	}}
	e := newTestEngine(t, s)

	record, err := e.PerformResearch(context.Background(), merakiProduct())
	require.NoError(t, err)

	eos := record.FieldValueFor(model.FieldEndOfSale)
	require.NotNil(t, eos.Value)
	assert.Equal(t, "2015-01-31", eos.ISODate())
	assert.Equal(t, 50, eos.Confidence)

	ldos := record.FieldValueFor(model.FieldLastDayOfSupport)
	assert.Equal(t, "2020-04-30", ldos.ISODate())
	assert.Equal(t, 25, ldos.Confidence)

	// (50*3 + 25*3) / 6, rounded.
	assert.Equal(t, 38, record.OverallConfidence)
	assert.Equal(t, model.DataSourceCounts{VendorSite: 1, ThirdParty: 1}, record.DataSourceCounts)
	assert.False(t, record.IsCurrentProduct)
	assert.Equal(t, model.ErrorKindNone, record.ResearchError)
}

func TestPerformResearch_Deterministic(t *testing.T) {
	s := newStubSearcher()
	s.hits[`"MR33-HW" site:documentation.meraki.com`] = []model.RawHit{
		{SourceURL: "https://documentation.meraki.com/eol", Snippet: "End-of-Sale Date: 31-Jan-2015"},
		{SourceURL: "https://documentation.meraki.com/eol", Snippet: "End of Support Date: October 31, 2026"},
	}
	e := newTestEngine(t, s)

	first, err := e.PerformResearch(context.Background(), merakiProduct())
	require.NoError(t, err)
	second, err := e.PerformResearch(context.Background(), merakiProduct())
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPerformResearch_PartialTransientFailures(t *testing.T) {
	s := newStubSearcher()
	transient := resilience.NewTransientError(errors.New("upstream 503"), 503)
	s.errs[`"MR33-HW" Cisco Meraki "end of life"`] = transient
	s.errs[`"MR33" site:documentation.meraki.com EOL`] = transient
	s.hits[`"MR33-HW" site:documentation.meraki.com`] = []model.RawHit{{
		SourceURL: "https://documentation.meraki.com/eol",
		Snippet:   "End-of-Sale Date: 31-Jan-2015",
	}}
	e := newTestEngine(t, s)

	record, err := e.PerformResearch(context.Background(), merakiProduct())
	require.NoError(t, err)

	assert.Equal(t, "2015-01-31", record.FieldValueFor(model.FieldEndOfSale).ISODate())
	assert.Equal(t, model.ErrorKindNone, record.ResearchError)
	// Transient queries were retried up to the attempt bound.
	assert.Equal(t, 2, s.calls[`"MR33-HW" Cisco Meraki "end of life"`])
}

func TestPerformResearch_AllQueriesFail(t *testing.T) {
	s := newStubSearcher()
	permanent := resilience.NewPermanentError(errors.New("quota exceeded"), 403)
	for _, q := range []string{
		`"MR33-HW" Cisco Meraki "end of life"`,
		`"MR33-HW" site:documentation.meraki.com`,
		`"MR33" site:documentation.meraki.com EOL`,
		`"MR33" Cisco Meraki "end of life"`,
	} {
		s.errs[q] = permanent
	}
	e := newTestEngine(t, s)

	record, err := e.PerformResearch(context.Background(), merakiProduct())
	require.NoError(t, err)

	assert.Equal(t, model.ErrorKindSearchPermanent, record.ResearchError)
	assert.Zero(t, record.OverallConfidence)
	for _, f := range model.Fields {
		assert.Nil(t, record.FieldValueFor(f).Value)
	}
	// Permanent failures are not retried.
	assert.Equal(t, 1, s.calls[`"MR33-HW" Cisco Meraki "end of life"`])
}

func TestPerformResearch_EmptyResults(t *testing.T) {
	e := newTestEngine(t, newStubSearcher())

	record, err := e.PerformResearch(context.Background(), merakiProduct())
	require.NoError(t, err)

	assert.Zero(t, record.OverallConfidence)
	assert.Equal(t, model.ErrorKindNone, record.ResearchError)
	assert.True(t, record.IsCurrentProduct)
	for _, f := range model.Fields {
		assert.Nil(t, record.FieldValueFor(f).Value)
	}
}

func TestPerformResearch_QueryGenerationErrorPropagates(t *testing.T) {
	e := newTestEngine(t, newStubSearcher())

	record, err := e.PerformResearch(context.Background(), model.Product{ProductID: "   "})
	require.Error(t, err)
	assert.Nil(t, record)
	assert.True(t, IsQueryGenerationError(err))
}

func TestPerformResearch_ManualCandidates(t *testing.T) {
	s := newStubSearcher()
	permanent := resilience.NewPermanentError(errors.New("quota exceeded"), 403)
	for _, q := range []string{
		`"MR33-HW" Cisco Meraki "end of life"`,
		`"MR33-HW" site:documentation.meraki.com`,
		`"MR33" site:documentation.meraki.com EOL`,
		`"MR33" Cisco Meraki "end of life"`,
	} {
		s.errs[q] = permanent
	}
	d := day(2027, time.June, 30)
	e := newTestEngine(t, s, WithManualCandidates("MR33-HW", model.DateCandidate{
		Field:          model.FieldEndOfSale,
		RawText:        "2027-06-30",
		NormalizedDate: d,
	}))

	record, err := e.PerformResearch(context.Background(), merakiProduct())
	require.NoError(t, err)

	eos := record.FieldValueFor(model.FieldEndOfSale)
	assert.Equal(t, "2027-06-30", eos.ISODate())
	assert.Equal(t, 15, eos.Confidence)
	assert.Equal(t, model.DataSourceCounts{ManualEntry: 1}, record.DataSourceCounts)
	// End of sale past the clock means the product is still current.
	assert.True(t, record.IsCurrentProduct)
}

func TestPerformResearch_IsCurrentProduct(t *testing.T) {
	s := newStubSearcher()
	s.hits[`"MR33-HW" site:documentation.meraki.com`] = []model.RawHit{{
		SourceURL: "https://documentation.meraki.com/eol",
		Snippet:   "End of Sale Date: 2030-01-01",
	}}
	e := newTestEngine(t, s)

	record, err := e.PerformResearch(context.Background(), merakiProduct())
	require.NoError(t, err)
	assert.True(t, record.IsCurrentProduct)
}
