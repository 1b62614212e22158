package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Google   GoogleConfig   `yaml:"google" mapstructure:"google"`
	Research ResearchConfig `yaml:"research" mapstructure:"research"`
	Report   ReportConfig   `yaml:"report" mapstructure:"report"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GoogleConfig holds Google Custom Search API settings.
type GoogleConfig struct {
	APIKey         string  `yaml:"api_key" mapstructure:"api_key"`
	SearchEngineID string  `yaml:"search_engine_id" mapstructure:"search_engine_id"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSecond  float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst      int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// ResearchConfig configures the per-product research engine.
type ResearchConfig struct {
	MaxQueries      int    `yaml:"max_queries" mapstructure:"max_queries"`
	MaxHitsPerQuery int    `yaml:"max_hits_per_query" mapstructure:"max_hits_per_query"`
	SearchRetries   int    `yaml:"search_retries" mapstructure:"search_retries"`
	RulesFile       string `yaml:"rules_file" mapstructure:"rules_file"`
}

// ReportConfig configures report generation.
type ReportConfig struct {
	MaxConcurrentProducts int    `yaml:"max_concurrent_products" mapstructure:"max_concurrent_products"`
	RiskWindowDays        int    `yaml:"risk_window_days" mapstructure:"risk_window_days"`
	DefaultBasis          string `yaml:"default_basis" mapstructure:"default_basis"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LIFECYCLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "lifecycle.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("google.base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("google.timeout_secs", 10)
	v.SetDefault("google.rate_per_second", 2.0)
	v.SetDefault("google.rate_burst", 2)
	v.SetDefault("research.max_queries", 5)
	v.SetDefault("research.max_hits_per_query", 10)
	v.SetDefault("research.search_retries", 3)
	v.SetDefault("report.max_concurrent_products", 4)
	v.SetDefault("report.risk_window_days", 365)
	v.SetDefault("report.default_basis", "lastDayOfSupport")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
