package research

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sells-group/lifecycle-cli/internal/model"
)

// Base confidence weight per source trust tier. A tier contributes its
// weight once per distinct source domain, so ten hits on the same page
// carry no more weight than one.
var tierWeights = map[model.SourceType]int{
	model.SourceVendorSite:  50,
	model.SourceThirdParty:  25,
	model.SourceManualEntry: 15,
}

// agreementBonus is added per distinct domain beyond the first
// supporting the same normalized date.
const agreementBonus = 10

// Weights for folding per-field confidences into the overall score.
// The primary lifecycle milestones dominate the secondary windows.
var overallWeights = map[model.Field]int{
	model.FieldEndOfSale:          3,
	model.FieldLastDayOfSupport:   3,
	model.FieldEndOfSWMaintenance: 1,
	model.FieldEndOfVulnSupport:   1,
}

// AggregationError reports an unexpected state while scoring one
// product's candidates. It is fatal only to that product's record.
type AggregationError struct {
	ProductID string
	Reason    string
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("research: aggregation failed for %q: %s", e.ProductID, e.Reason)
}

// Score folds a candidate set into per-field values, per-field
// confidences, and source counts. The candidate order does not affect
// the outcome; ties between competing dates break toward the earlier
// date. A corrupt candidate (zero date or unknown tier) yields an
// AggregationError.
func Score(productID string, candidates []model.DateCandidate) (map[model.Field]model.FieldValue, model.DataSourceCounts, error) {
	fields := make(map[model.Field]model.FieldValue, len(model.Fields))
	var counts model.DataSourceCounts

	byField := make(map[model.Field][]model.DateCandidate)
	countedDomains := make(map[string]model.SourceType)
	for _, c := range candidates {
		if c.NormalizedDate.IsZero() {
			return nil, counts, &AggregationError{ProductID: productID, Reason: fmt.Sprintf("candidate %q has no normalized date", c.RawText)}
		}
		if _, ok := tierWeights[c.SourceType]; !ok {
			return nil, counts, &AggregationError{ProductID: productID, Reason: fmt.Sprintf("unknown source type %q", c.SourceType)}
		}
		byField[c.Field] = append(byField[c.Field], c)
		key := string(c.SourceType) + "|" + candidateDomain(c)
		if _, ok := countedDomains[key]; !ok {
			countedDomains[key] = c.SourceType
		}
	}
	for _, tier := range countedDomains {
		switch tier {
		case model.SourceVendorSite:
			counts.VendorSite++
		case model.SourceThirdParty:
			counts.ThirdParty++
		case model.SourceManualEntry:
			counts.ManualEntry++
		}
	}

	for _, f := range model.Fields {
		fields[f] = scoreField(byField[f])
	}
	return fields, counts, nil
}

// scoreField picks the winning date for one field. Each distinct date
// accumulates tier weight once per distinct domain plus the agreement
// bonus for every corroborating domain beyond the first.
func scoreField(candidates []model.DateCandidate) model.FieldValue {
	if len(candidates) == 0 {
		return model.FieldValue{}
	}

	type tally struct {
		date    time.Time
		domains map[string]model.SourceType
	}
	byDate := make(map[string]*tally)
	for _, c := range candidates {
		key := c.NormalizedDate.Format("2006-01-02")
		t, ok := byDate[key]
		if !ok {
			t = &tally{date: c.NormalizedDate, domains: make(map[string]model.SourceType)}
			byDate[key] = t
		}
		domain := candidateDomain(c)
		// A vendor-tier hit upgrades a domain already counted at a
		// lower tier.
		if prev, seen := t.domains[domain]; !seen || tierWeights[c.SourceType] > tierWeights[prev] {
			t.domains[domain] = c.SourceType
		}
	}

	tallies := make([]*tally, 0, len(byDate))
	for _, t := range byDate {
		tallies = append(tallies, t)
	}
	sort.Slice(tallies, func(i, j int) bool { return tallies[i].date.Before(tallies[j].date) })

	var best *tally
	bestWeight := -1
	for _, t := range tallies {
		w := 0
		for _, tier := range t.domains {
			w += tierWeights[tier]
		}
		w += agreementBonus * (len(t.domains) - 1)
		if w > bestWeight {
			best, bestWeight = t, w
		}
	}

	if bestWeight > 100 {
		bestWeight = 100
	}
	date := best.date
	return model.FieldValue{Value: &date, Confidence: bestWeight}
}

// OverallConfidence is the weighted mean of the populated fields'
// confidences, rounded to the nearest integer. No populated fields
// means zero.
func OverallConfidence(fields map[model.Field]model.FieldValue) int {
	sum, weight := 0, 0
	for f, fv := range fields {
		if fv.Value == nil {
			continue
		}
		w := overallWeights[f]
		sum += fv.Confidence * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(weight)))
}

// candidateDomain keys distinct-source counting. Manual entries have
// no URL and count as one synthetic domain.
func candidateDomain(c model.DateCandidate) string {
	if c.SourceType == model.SourceManualEntry {
		return "manual"
	}
	if d := domainOf(c.SourceURL); d != "" {
		return d
	}
	return c.SourceURL
}
