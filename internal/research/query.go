package research

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/lifecycle-cli/internal/model"
)

// hardwareSuffixes are SKU decorations vendors drop on their EOL pages;
// a variant query with the suffix stripped catches pages that list only
// the base model.
var hardwareSuffixes = []string{"-HW", "-K9"}

var identCharRe = regexp.MustCompile(`[A-Za-z0-9]`)

// QueryBuilder generates the ordered, deduplicated, length-capped list
// of search query strings for a product.
type QueryBuilder struct {
	vendors    []compiledVendorRule
	maxQueries int
}

// NewQueryBuilder compiles the vendor rule table. maxQueries <= 0 uses
// the default cap of 5.
func NewQueryBuilder(rules *Rules, maxQueries int) (*QueryBuilder, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	if maxQueries <= 0 {
		maxQueries = 5
	}
	vendors, err := compileVendorRules(rules.Vendors)
	if err != nil {
		return nil, err
	}
	return &QueryBuilder{vendors: vendors, maxQueries: maxQueries}, nil
}

// Build returns queries in priority order: the generic exact-match
// query, vendor-scoped queries from the rule table, then suffix-stripped
// variants. Returns QueryGenerationError for an empty or malformed
// identifier.
func (b *QueryBuilder) Build(p model.Product) ([]string, error) {
	id := strings.TrimSpace(p.ProductID)
	if id == "" {
		return nil, &QueryGenerationError{ProductID: p.ProductID, Reason: "empty identifier"}
	}
	if !identCharRe.MatchString(id) {
		return nil, &QueryGenerationError{ProductID: p.ProductID, Reason: "no alphanumeric characters"}
	}

	manufacturer := strings.TrimSpace(p.Manufacturer)

	var queries []string
	queries = append(queries, genericQuery(id, manufacturer))

	var matched *compiledVendorRule
	for i := range b.vendors {
		r := b.vendors[i]
		if !r.matches(id, manufacturer) {
			continue
		}
		if matched == nil {
			matched = &b.vendors[i]
		}
		q := fmt.Sprintf("%q site:%s", id, r.Domain)
		if r.Extra != "" {
			q = fmt.Sprintf("%q %s site:%s", id, r.Extra, r.Domain)
		}
		queries = append(queries, q)
	}

	if base := stripHardwareSuffix(id); base != id {
		if matched != nil {
			queries = append(queries, fmt.Sprintf("%q site:%s EOL", base, matched.Domain))
		}
		queries = append(queries, genericQuery(base, manufacturer))
	}

	return dedupeAndCap(queries, b.maxQueries), nil
}

func genericQuery(id, manufacturer string) string {
	if manufacturer == "" {
		return fmt.Sprintf("%q \"end of life\"", id)
	}
	return fmt.Sprintf("%q %s \"end of life\"", id, manufacturer)
}

func stripHardwareSuffix(id string) string {
	upper := strings.ToUpper(id)
	for _, suffix := range hardwareSuffixes {
		if strings.HasSuffix(upper, suffix) && len(id) > len(suffix) {
			return id[:len(id)-len(suffix)]
		}
	}
	return id
}

func dedupeAndCap(queries []string, max int) []string {
	seen := make(map[string]struct{}, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
		if len(out) == max {
			break
		}
	}
	return out
}
