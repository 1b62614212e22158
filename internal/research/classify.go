package research

import (
	"net/url"
	"strings"

	"github.com/sells-group/lifecycle-cli/internal/model"
)

// Classifier maps source URLs onto trust tiers using the per-vendor
// domain allowlist. Anything not on an allowlist is third-party;
// manual entries never pass through here, they are tagged at intake.
type Classifier struct {
	// byHint maps a lowercased manufacturer substring to its
	// authoritative domains.
	byHint map[string][]string
	all    []string
}

// NewClassifier builds a classifier from the rules allowlist. Nil
// rules fall back to the built-in defaults.
func NewClassifier(rules *Rules) *Classifier {
	if rules == nil || len(rules.Allowlist) == 0 {
		rules = DefaultRules()
	}
	c := &Classifier{byHint: make(map[string][]string)}
	seen := make(map[string]struct{})
	for hint, list := range rules.Allowlist {
		hint = strings.ToLower(strings.TrimSpace(hint))
		for _, d := range list {
			d = strings.ToLower(strings.TrimSpace(d))
			if d == "" {
				continue
			}
			c.byHint[hint] = append(c.byHint[hint], d)
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			c.all = append(c.all, d)
		}
	}
	return c
}

// Classify returns the trust tier for a source URL found while
// researching the given manufacturer's product. When the manufacturer
// matches an allowlist hint only that vendor's domains count;
// otherwise any allowlisted domain does. Subdomains of an allowlisted
// domain count as vendor sites; unparseable URLs are third-party.
func (c *Classifier) Classify(manufacturer, sourceURL string) model.SourceType {
	host := domainOf(sourceURL)
	if host == "" {
		return model.SourceThirdParty
	}
	for _, d := range c.domainsFor(manufacturer) {
		if host == d || strings.HasSuffix(host, "."+d) {
			return model.SourceVendorSite
		}
	}
	return model.SourceThirdParty
}

func (c *Classifier) domainsFor(manufacturer string) []string {
	mfr := strings.ToLower(manufacturer)
	var domains []string
	for hint, list := range c.byHint {
		if strings.Contains(mfr, hint) {
			domains = append(domains, list...)
		}
	}
	if len(domains) == 0 {
		return c.all
	}
	return domains
}

// domainOf extracts the lowercased hostname, tolerating bare hosts
// without a scheme.
func domainOf(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if host == "" && !strings.Contains(sourceURL, "://") {
		if u2, err2 := url.Parse("https://" + sourceURL); err2 == nil {
			host = u2.Hostname()
		}
	}
	return strings.ToLower(strings.TrimPrefix(host, "www."))
}
