package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lifecycle-cli/internal/report"
	"github.com/sells-group/lifecycle-cli/internal/research"
	"github.com/sells-group/lifecycle-cli/internal/resilience"
	"github.com/sells-group/lifecycle-cli/internal/store"
	"github.com/sells-group/lifecycle-cli/pkg/google"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "lifecycle.db"
		}
		st, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func loadRules() (*research.Rules, error) {
	if cfg.Research.RulesFile == "" {
		return research.DefaultRules(), nil
	}
	return research.LoadRules(cfg.Research.RulesFile)
}

func initEngine() (*research.Engine, error) {
	if cfg.Google.APIKey == "" {
		return nil, eris.New("google API key is required (LIFECYCLE_GOOGLE_API_KEY)")
	}
	if cfg.Google.SearchEngineID == "" {
		return nil, eris.New("google search engine ID is required (LIFECYCLE_GOOGLE_SEARCH_ENGINE_ID)")
	}

	rules, err := loadRules()
	if err != nil {
		return nil, err
	}

	client := google.NewClient(cfg.Google.APIKey, cfg.Google.SearchEngineID,
		google.WithBaseURL(cfg.Google.BaseURL),
		google.WithTimeout(time.Duration(cfg.Google.TimeoutSecs)*time.Second),
		google.WithRateLimit(cfg.Google.RatePerSecond, cfg.Google.RateBurst),
		google.WithMaxResults(cfg.Research.MaxHitsPerQuery),
	)
	searcher := research.NewGoogleSearcher(client, cfg.Research.MaxHitsPerQuery)

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("google", "custom_search")
	if cfg.Research.SearchRetries > 0 {
		retryCfg.MaxAttempts = cfg.Research.SearchRetries
	}

	return research.NewEngine(searcher, rules, cfg.Research.MaxQueries,
		research.WithRetryConfig(retryCfg))
}

func initOrchestrator(st store.Store, engine *research.Engine) *report.Orchestrator {
	return report.NewOrchestrator(st, engine, report.NewXLSXWriter(), report.NewProgressRegistry(),
		report.WithMaxConcurrent(cfg.Report.MaxConcurrentProducts),
		report.WithRiskWindow(time.Duration(cfg.Report.RiskWindowDays)*24*time.Hour),
	)
}
