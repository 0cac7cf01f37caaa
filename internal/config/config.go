// Package config loads and validates environment variables at startup.
// Fail-fast: if a required variable is missing, the process exits.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"jobmate/scan-service/internal/filter"
	"jobmate/scan-service/internal/model"
)

// DrainConfig bounds one drain-batch invocation.
type DrainConfig struct {
	Concurrency int
	MaxJobs     int
	MaxDuration time.Duration
	IdleWait    time.Duration
}

// Config holds all runtime configuration for the scan service.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	SearchAPIURL string
	SearchAPIKey string
	ScoreAPIURL  string

	ScrapeAPIURL   string
	ScrapeAPIKey   string
	ScrapeZone     string
	ScrapeCustomer string           // required only in async mode
	ScrapeMode     model.ScrapeMode // "sync" or "async"

	ResultLimit    int // 0 = unlimited filtered URLs per scan
	TruncatePolicy filter.TruncatePolicy

	InternalToken string // shared secret for the /internal endpoints

	Drain DrainConfig

	DrainIntervalMinutes int // 0 disables the in-process cron trigger
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	token := os.Getenv("INTERNAL_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("INTERNAL_TOKEN is required")
	}

	mode := model.ScrapeMode(os.Getenv("SCRAPE_MODE"))
	switch mode {
	case "":
		mode = model.ScrapeModeSync
	case model.ScrapeModeSync, model.ScrapeModeAsync:
	default:
		return nil, fmt.Errorf("SCRAPE_MODE must be sync or async, got %q", mode)
	}

	policy := filter.TruncatePolicy(os.Getenv("TRUNCATE_POLICY"))
	switch policy {
	case "":
		policy = filter.TruncateScoreDesc
	case filter.TruncateScoreDesc, filter.TruncateAsReturned:
	default:
		return nil, fmt.Errorf("TRUNCATE_POLICY must be score_desc or as_returned, got %q", policy)
	}

	port := os.Getenv("SCAN_PORT")
	if port == "" {
		port = "8082"
	}

	return &Config{
		Port:        port,
		DatabaseURL: dbURL,
		RedisURL:    redisURL,

		SearchAPIURL: os.Getenv("SEARCH_API_URL"),
		SearchAPIKey: os.Getenv("SEARCH_API_KEY"),
		ScoreAPIURL:  os.Getenv("SCORE_API_URL"),

		ScrapeAPIURL:   os.Getenv("SCRAPE_API_URL"),
		ScrapeAPIKey:   os.Getenv("SCRAPE_API_KEY"),
		ScrapeZone:     os.Getenv("SCRAPE_ZONE"),
		ScrapeCustomer: os.Getenv("SCRAPE_CUSTOMER"),
		ScrapeMode:     mode,

		ResultLimit:    intEnv("RESULT_LIMIT", 25),
		TruncatePolicy: policy,

		InternalToken: token,

		Drain: DrainConfig{
			Concurrency: intEnv("DRAIN_CONCURRENCY", 3),
			MaxJobs:     intEnv("DRAIN_MAX_JOBS", 20),
			MaxDuration: time.Duration(intEnv("DRAIN_MAX_DURATION_MS", 270_000)) * time.Millisecond,
			IdleWait:    time.Duration(intEnv("DRAIN_IDLE_WAIT_MS", 2_000)) * time.Millisecond,
		},

		DrainIntervalMinutes: intEnv("DRAIN_INTERVAL_MINUTES", 0),
	}, nil
}

// intEnv reads a non-negative integer env var, falling back to def when
// unset or invalid.
func intEnv(name string, def int) int {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return def
	}
	return v
}
