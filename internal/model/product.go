package model

import "time"

// SourceType is the trust classification of where a date was found.
type SourceType string

const (
	SourceVendorSite  SourceType = "vendor_site"
	SourceThirdParty  SourceType = "third_party"
	SourceManualEntry SourceType = "manual_entry"
)

// Field identifies a lifecycle milestone date.
type Field string

const (
	FieldEndOfSale          Field = "end_of_sale"
	FieldLastDayOfSupport   Field = "last_day_of_support"
	FieldEndOfSWMaintenance Field = "end_of_sw_maintenance"
	FieldEndOfVulnSupport   Field = "end_of_vulnerability_support"
)

// Fields lists all lifecycle fields in canonical order.
var Fields = []Field{
	FieldEndOfSale,
	FieldLastDayOfSupport,
	FieldEndOfSWMaintenance,
	FieldEndOfVulnSupport,
}

// Product is an immutable input row from a job. Index is the original
// position within the job's product list; report output is re-sorted by
// it before being handed to the writer.
type Product struct {
	ProductID    string `json:"product_id"`
	Manufacturer string `json:"manufacturer"`
	Description  string `json:"description,omitempty"`
	Quantity     int    `json:"quantity"`
	Index        int    `json:"index"`
}

// RawHit is a single result returned by the search client.
type RawHit struct {
	SourceURL string `json:"source_url"`
	Snippet   string `json:"snippet"`
}

// DateCandidate is one date-bearing phrase extracted from a snippet.
// Candidates are ephemeral: they exist between extraction and
// reconciliation and are discarded afterwards. PatternID records the
// extraction rule that produced the candidate.
type DateCandidate struct {
	Field          Field
	RawText        string
	NormalizedDate time.Time
	SourceURL      string
	SourceType     SourceType
	PatternID      string
}
