package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Research.MaxQueries)
	assert.Equal(t, 3, cfg.Research.SearchRetries)
	assert.Equal(t, 4, cfg.Report.MaxConcurrentProducts)
	assert.Equal(t, 365, cfg.Report.RiskWindowDays)
	assert.Equal(t, "lastDayOfSupport", cfg.Report.DefaultBasis)
	assert.Equal(t, "https://www.googleapis.com/customsearch/v1", cfg.Google.BaseURL)
}

func TestLoad_EnvOverride(t *testing.T) {
	os.Setenv("LIFECYCLE_GOOGLE_API_KEY", "test-key")
	os.Setenv("LIFECYCLE_REPORT_RISK_WINDOW_DAYS", "180")
	defer os.Unsetenv("LIFECYCLE_GOOGLE_API_KEY")
	defer os.Unsetenv("LIFECYCLE_REPORT_RISK_WINDOW_DAYS")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.Google.APIKey)
	assert.Equal(t, 180, cfg.Report.RiskWindowDays)
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
}
