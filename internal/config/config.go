// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the service configuration.
type Config struct {
	// DatabaseDriver selects the storage backend: "postgres" or "memory"
	// for no database at all.
	DatabaseDriver string

	// DatabaseDSN is the connection string for the selected driver.
	DatabaseDSN string

	// APIAddr is the HTTP API listen address.
	APIAddr string

	// MetricsAddr is the Prometheus metrics listen address.
	MetricsAddr string

	// OpenAIAPIKey authenticates evaluator calls.
	OpenAIAPIKey string

	// OpenAIBaseURL overrides the evaluator endpoint (optional).
	OpenAIBaseURL string

	// StepTimeout bounds one evaluation call.
	StepTimeout time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win over
// file values.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DatabaseDriver: getenv("EVALRUN_DB_DRIVER", "memory"),
		DatabaseDSN:    os.Getenv("EVALRUN_DB_DSN"),
		APIAddr:        getenv("EVALRUN_API_ADDR", ":8080"),
		MetricsAddr:    getenv("EVALRUN_METRICS_ADDR", ":9090"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
	}

	timeout := getenv("EVALRUN_STEP_TIMEOUT", "30m")
	d, err := time.ParseDuration(timeout)
	if err != nil {
		return Config{}, fmt.Errorf("invalid EVALRUN_STEP_TIMEOUT %q: %w", timeout, err)
	}
	cfg.StepTimeout = d

	switch cfg.DatabaseDriver {
	case "memory":
	case "postgres":
		if cfg.DatabaseDSN == "" {
			return Config{}, fmt.Errorf("EVALRUN_DB_DSN is required for driver %q", cfg.DatabaseDriver)
		}
	default:
		return Config{}, fmt.Errorf("unsupported EVALRUN_DB_DRIVER %q", cfg.DatabaseDriver)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
