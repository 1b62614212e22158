package research

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRules_OverridesDefaults(t *testing.T) {
	path := writeRulesFile(t, `
research:
  vendors:
    - id: acme_widgets
      manufacturer_hint: acme
      id_pattern: '^AW-\d'
      domain: docs.acme.example
  allowlist:
    acme:
      - docs.acme.example
`)

	rules, err := LoadRules(path)
	require.NoError(t, err)

	require.Len(t, rules.Vendors, 1)
	assert.Equal(t, "acme_widgets", rules.Vendors[0].ID)
	assert.Equal(t, "docs.acme.example", rules.Vendors[0].Domain)
	assert.Equal(t, []string{"docs.acme.example"}, rules.Allowlist["acme"])
}

func TestLoadRules_OmittedSectionsFallBack(t *testing.T) {
	path := writeRulesFile(t, `
research:
  allowlist:
    acme:
      - docs.acme.example
`)

	rules, err := LoadRules(path)
	require.NoError(t, err)

	// Vendors absent from the file come from the compiled-in defaults.
	assert.Equal(t, DefaultRules().Vendors, rules.Vendors)
	assert.Equal(t, []string{"docs.acme.example"}, rules.Allowlist["acme"])
}

func TestLoadRules_MissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadRules_InvalidYAML(t *testing.T) {
	path := writeRulesFile(t, "research: [not: a: mapping")
	_, err := LoadRules(path)
	require.Error(t, err)
}

func TestDefaultRules_CompilableAndUsable(t *testing.T) {
	rules := DefaultRules()

	// Every built-in vendor pattern must compile.
	compiled, err := compileVendorRules(rules.Vendors)
	require.NoError(t, err)
	require.Len(t, compiled, len(rules.Vendors))

	// And every vendor rule's domain should appear in some allowlist
	// so classified hits from its own site score at vendor tier.
	for _, v := range rules.Vendors {
		found := false
		for _, domains := range rules.Allowlist {
			for _, d := range domains {
				if d == v.Domain {
					found = true
				}
			}
		}
		assert.True(t, found, "vendor rule %s domain %s missing from allowlist", v.ID, v.Domain)
	}
}
