package research

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/lifecycle-cli/internal/model"
)

// Grammar capture fragments. Each captures the full date token in
// group 1; the token is then handed to the grammar's layout parser.
const (
	captureDayMonYear   = `(\d{1,2}[-\s][A-Za-z]{3,9}[-\s]\d{4})`
	captureMonthDayYear = `([A-Za-z]{3,9}\.?\s+\d{1,2},?\s+\d{4})`
	captureISO          = `(\d{4}-\d{2}-\d{2})`
)

type compiledPattern struct {
	rule PatternRule
	re   *regexp.Regexp
}

// Extractor applies the pattern registry to search hit snippets and
// yields normalized date candidates. Stateless beyond its compiled
// rule set; safe for concurrent use.
type Extractor struct {
	patterns   []compiledPattern
	classifier *Classifier
}

// NewExtractor compiles the given rules. Nil or empty rules fall back
// to DefaultPatternRules. Compilation failures are programmer errors
// in the registry and surface immediately.
func NewExtractor(rules []PatternRule, classifier *Classifier) (*Extractor, error) {
	if len(rules) == 0 {
		rules = DefaultPatternRules
	}
	compiled := make([]compiledPattern, 0, len(rules))
	for _, r := range rules {
		capture, ok := grammarCapture(r.Grammar)
		if !ok {
			return nil, fmt.Errorf("research: pattern %s: unknown grammar %q", r.ID, r.Grammar)
		}
		re, err := regexp.Compile(`(?i)` + r.Label + `\s*:?\s*` + capture)
		if err != nil {
			return nil, fmt.Errorf("research: pattern %s: %w", r.ID, err)
		}
		compiled = append(compiled, compiledPattern{rule: r, re: re})
	}
	return &Extractor{patterns: compiled, classifier: classifier}, nil
}

func grammarCapture(g Grammar) (string, bool) {
	switch g {
	case GrammarDayMonYear:
		return captureDayMonYear, true
	case GrammarMonthDayYear:
		return captureMonthDayYear, true
	case GrammarISO:
		return captureISO, true
	}
	return "", false
}

// Extract runs every pattern against every hit snippet and returns all
// candidates found, sorted by field, date, then source URL so callers
// see a deterministic order regardless of hit arrival order. The
// manufacturer scopes source trust classification. Tokens that match a
// label but fail date parsing are logged and dropped; they never abort
// extraction.
func (e *Extractor) Extract(manufacturer string, hits []model.RawHit) []model.DateCandidate {
	var out []model.DateCandidate
	for _, hit := range hits {
		snippet := normalizeSnippet(hit.Snippet)
		for _, p := range e.patterns {
			for _, m := range p.re.FindAllStringSubmatch(snippet, -1) {
				raw := m[1]
				date, err := parseDateToken(p.rule.Grammar, raw)
				if err != nil {
					zap.L().Warn("date parse anomaly",
						zap.String("pattern_id", p.rule.ID),
						zap.String("raw_text", raw),
						zap.String("source_url", hit.SourceURL))
					continue
				}
				out = append(out, model.DateCandidate{
					Field:          p.rule.Field,
					RawText:        raw,
					NormalizedDate: date,
					SourceURL:      hit.SourceURL,
					SourceType:     e.classify(manufacturer, hit.SourceURL),
					PatternID:      p.rule.ID,
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		if !out[i].NormalizedDate.Equal(out[j].NormalizedDate) {
			return out[i].NormalizedDate.Before(out[j].NormalizedDate)
		}
		return out[i].SourceURL < out[j].SourceURL
	})
	return out
}

func (e *Extractor) classify(manufacturer, sourceURL string) model.SourceType {
	if e.classifier == nil {
		return model.SourceThirdParty
	}
	return e.classifier.Classify(manufacturer, sourceURL)
}

var snippetReplacer = strings.NewReplacer(
	"–", "-", // en dash
	"—", "-", // em dash
	" ", " ", // no-break space
)

// normalizeSnippet folds typographic variants search engines introduce
// so the pattern registry only has to know ASCII forms.
func normalizeSnippet(s string) string {
	return snippetReplacer.Replace(norm.NFKC.String(s))
}

func parseDateToken(g Grammar, raw string) (time.Time, error) {
	token := strings.TrimSpace(raw)
	switch g {
	case GrammarDayMonYear:
		token = strings.ReplaceAll(token, " ", "-")
		for _, layout := range []string{"2-Jan-2006", "2-January-2006"} {
			if t, err := time.Parse(layout, token); err == nil {
				return t, nil
			}
		}
	case GrammarMonthDayYear:
		token = strings.ReplaceAll(token, ",", "")
		token = strings.ReplaceAll(token, ".", "")
		token = strings.Join(strings.Fields(token), " ")
		for _, layout := range []string{"January 2 2006", "Jan 2 2006"} {
			if t, err := time.Parse(layout, token); err == nil {
				return t, nil
			}
		}
	case GrammarISO:
		if t, err := time.Parse("2006-01-02", token); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("research: unparseable %s token %q", g, raw)
}
