package model

import (
	"encoding/json"
	"time"
)

// ErrorKind classifies a per-product research failure that was folded
// into the record instead of propagated.
type ErrorKind string

const (
	ErrorKindNone            ErrorKind = ""
	ErrorKindQueryGeneration ErrorKind = "query_generation"
	ErrorKindSearchTransient ErrorKind = "search_transient"
	ErrorKindSearchPermanent ErrorKind = "search_permanent"
	ErrorKindAggregation     ErrorKind = "aggregation"
	ErrorKindSkipped         ErrorKind = "skipped"
)

// FieldValue is the reconciled value for one lifecycle field.
type FieldValue struct {
	Value      *time.Time `json:"-"`
	Confidence int        `json:"confidence"`
}

// ISODate renders the value as an ISO-8601 calendar date, or "" when unset.
func (fv FieldValue) ISODate() string {
	if fv.Value == nil {
		return ""
	}
	return fv.Value.Format("2006-01-02")
}

// MarshalJSON emits {"value": "2022-07-14"|null, "confidence": n}.
func (fv FieldValue) MarshalJSON() ([]byte, error) {
	out := struct {
		Value      *string `json:"value"`
		Confidence int     `json:"confidence"`
	}{Confidence: fv.Confidence}
	if fv.Value != nil {
		s := fv.Value.Format("2006-01-02")
		out.Value = &s
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the shape produced by MarshalJSON.
func (fv *FieldValue) UnmarshalJSON(data []byte) error {
	var in struct {
		Value      *string `json:"value"`
		Confidence int     `json:"confidence"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	fv.Confidence = in.Confidence
	fv.Value = nil
	if in.Value != nil {
		t, err := time.Parse("2006-01-02", *in.Value)
		if err != nil {
			return err
		}
		fv.Value = &t
	}
	return nil
}

// DataSourceCounts tallies contributing candidates by trust tier.
type DataSourceCounts struct {
	VendorSite  int `json:"vendor_site"`
	ThirdParty  int `json:"third_party"`
	ManualEntry int `json:"manual_entry"`
}

// LifecycleRecord is the reconciled, per-product output of the research
// engine. It is created once and never mutated afterwards.
type LifecycleRecord struct {
	ProductID         string               `json:"product_id"`
	Product           Product              `json:"product"`
	Fields            map[Field]FieldValue `json:"fields"`
	OverallConfidence int                  `json:"overall_confidence"`
	DataSourceCounts  DataSourceCounts     `json:"data_source_counts"`
	IsCurrentProduct  bool                 `json:"is_current_product"`
	ResearchError     ErrorKind            `json:"research_error,omitempty"`
}

// FieldValueFor returns the reconciled value for a field, zero when absent.
func (r *LifecycleRecord) FieldValueFor(f Field) FieldValue {
	if r.Fields == nil {
		return FieldValue{}
	}
	return r.Fields[f]
}

// EmptyRecord returns a record with every field null at zero confidence,
// annotated with the given error kind.
func EmptyRecord(p Product, kind ErrorKind) *LifecycleRecord {
	fields := make(map[Field]FieldValue, len(Fields))
	for _, f := range Fields {
		fields[f] = FieldValue{}
	}
	return &LifecycleRecord{
		ProductID:        p.ProductID,
		Product:          p,
		Fields:           fields,
		IsCurrentProduct: true,
		ResearchError:    kind,
	}
}
