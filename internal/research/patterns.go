package research

import "github.com/sells-group/lifecycle-cli/internal/model"

// Grammar identifies a supported date token syntax.
type Grammar string

const (
	// GrammarDayMonYear matches tokens like "31-Jan-2015".
	GrammarDayMonYear Grammar = "dd-mon-yyyy"
	// GrammarMonthDayYear matches tokens like "January 31, 2015".
	GrammarMonthDayYear Grammar = "month-dd-yyyy"
	// GrammarISO matches tokens like "2015-01-31".
	GrammarISO Grammar = "yyyy-mm-dd"
)

// PatternRule is one row of the extraction registry: a lifecycle field,
// a label matcher, and the date grammar expected after the label. Label
// matching is case-insensitive and tolerant of dash, spacing, and colon
// variants. New vendor phrasings are added as rows, never as code.
type PatternRule struct {
	ID    string
	Field model.Field
	// Label is a regex fragment matching the date's label phrase.
	Label   string
	Grammar Grammar
}

const (
	labelEndOfSale     = `end[\s-]+of[\s-]+sale(?:[\s-]+date)?`
	labelLastSupport   = `last[\s-]+(?:date|day)[\s-]+of[\s-]+support`
	labelEndOfSupport  = `end[\s-]+of[\s-]+support(?:[\s-]+date)?`
	labelSWMaintenance = `end[\s-]+of[\s-]+(?:sw|software)[\s-]+maintenance(?:[\s-]+releases?)?(?:[\s-]+date)?`
	labelVulnSupport   = `end[\s-]+of[\s-]+vulnerability(?:[\s/-]+security)?[\s-]+(?:support|maintenance)(?:[\s-]+date)?`
)

// DefaultPatternRules is the registry of known vendor EOL phrasings.
// Every supported grammar gets its own row per label so a new phrasing
// or date format is a one-line addition.
var DefaultPatternRules = []PatternRule{
	// End of sale.
	{ID: "eos_dmy", Field: model.FieldEndOfSale, Label: labelEndOfSale, Grammar: GrammarDayMonYear},
	{ID: "eos_mdy", Field: model.FieldEndOfSale, Label: labelEndOfSale, Grammar: GrammarMonthDayYear},
	{ID: "eos_iso", Field: model.FieldEndOfSale, Label: labelEndOfSale, Grammar: GrammarISO},

	// Last day of support. Cisco bulletins use "Last Date of Support",
	// Meraki uses "End of Support Date".
	{ID: "ldos_dmy", Field: model.FieldLastDayOfSupport, Label: labelLastSupport, Grammar: GrammarDayMonYear},
	{ID: "ldos_mdy", Field: model.FieldLastDayOfSupport, Label: labelLastSupport, Grammar: GrammarMonthDayYear},
	{ID: "ldos_iso", Field: model.FieldLastDayOfSupport, Label: labelLastSupport, Grammar: GrammarISO},
	{ID: "eost_dmy", Field: model.FieldLastDayOfSupport, Label: labelEndOfSupport, Grammar: GrammarDayMonYear},
	{ID: "eost_mdy", Field: model.FieldLastDayOfSupport, Label: labelEndOfSupport, Grammar: GrammarMonthDayYear},
	{ID: "eost_iso", Field: model.FieldLastDayOfSupport, Label: labelEndOfSupport, Grammar: GrammarISO},

	// Secondary maintenance windows.
	{ID: "swm_dmy", Field: model.FieldEndOfSWMaintenance, Label: labelSWMaintenance, Grammar: GrammarDayMonYear},
	{ID: "swm_mdy", Field: model.FieldEndOfSWMaintenance, Label: labelSWMaintenance, Grammar: GrammarMonthDayYear},
	{ID: "swm_iso", Field: model.FieldEndOfSWMaintenance, Label: labelSWMaintenance, Grammar: GrammarISO},
	{ID: "vuln_dmy", Field: model.FieldEndOfVulnSupport, Label: labelVulnSupport, Grammar: GrammarDayMonYear},
	{ID: "vuln_mdy", Field: model.FieldEndOfVulnSupport, Label: labelVulnSupport, Grammar: GrammarMonthDayYear},
	{ID: "vuln_iso", Field: model.FieldEndOfVulnSupport, Label: labelVulnSupport, Grammar: GrammarISO},
}
