package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Reference instants for population selection. Creditors with no payment at
// or after the recency cutoff are presumed churned; only payments at or
// after the window start feed the feature table. Overridable via env so
// backtests can shift the windows without touching pipeline code.
const (
	DefaultRecencyCutoff = "2016-10-01T00:00:00Z"
	DefaultWindowStart   = "2016-07-01T00:00:00Z"

	DefaultDataset    = "gc_data_science"
	DefaultModelPath  = "config/churn_model.json"
	DefaultOutputPath = "prediction.csv"
)

// AppConfig holds all configuration for the scoring job
type AppConfig struct {
	ProjectID    string
	Dataset      string
	ModelURI     string // local path or gs:// URI of the model artifact
	OutputPath   string
	UploadBucket string // optional; empty disables GCS upload of the output
	LogLevel     string

	RecencyCutoff time.Time
	WindowStart   time.Time
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.ProjectID = os.Getenv("GOOGLE_PROJECT_ID")
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("GOOGLE_PROJECT_ID is not set")
	}

	cfg.Dataset = os.Getenv("BQ_DATASET")
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}

	cfg.ModelURI = os.Getenv("MODEL_URI")
	if cfg.ModelURI == "" {
		cfg.ModelURI = DefaultModelPath
	}

	cfg.OutputPath = os.Getenv("OUTPUT_PATH")
	if cfg.OutputPath == "" {
		cfg.OutputPath = DefaultOutputPath
	}

	cfg.UploadBucket = os.Getenv("UPLOAD_BUCKET")

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	var err error
	cfg.RecencyCutoff, err = parseInstant("RECENCY_CUTOFF", DefaultRecencyCutoff)
	if err != nil {
		return nil, err
	}
	cfg.WindowStart, err = parseInstant("WINDOW_START", DefaultWindowStart)
	if err != nil {
		return nil, err
	}
	if !cfg.WindowStart.Before(cfg.RecencyCutoff) {
		return nil, fmt.Errorf("WINDOW_START %s must be before RECENCY_CUTOFF %s",
			cfg.WindowStart.Format(time.RFC3339), cfg.RecencyCutoff.Format(time.RFC3339))
	}

	return cfg, nil
}

func parseInstant(envVar, fallback string) (time.Time, error) {
	raw := os.Getenv(envVar)
	if raw == "" {
		raw = fallback
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", envVar, err)
	}
	return ts.UTC(), nil
}
