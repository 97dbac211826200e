// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/trailhut/settlement/internal/fees"
)

type Config struct {
	Port   string
	DBPath string

	// External payment processor / ledger.
	LedgerBaseURL string
	LedgerAPIKey  string
	LedgerTimeout time.Duration

	// Reconciliation batch behavior.
	ReconcileDelay     time.Duration // advisory pacing between ledger calls
	ReconcileTolerance float64       // major units; writes below this are skipped

	// Active processor-fee preset for estimates. Ledger truth always wins.
	FeePreset fees.Preset

	ServiceFeeRate     float64
	ProcessingFeeRate  float64
	ProcessingFeeFixed float64
}

// Load reads configuration from the environment. Every value has a default
// so the service starts with zero configuration in development; the ledger
// API key is the one value a real deployment must set.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	return Config{
		Port:               getEnv("PORT", "8080"),
		DBPath:             getEnv("DB_PATH", "settlement.db"),
		LedgerBaseURL:      getEnv("LEDGER_BASE_URL", "https://api.processor.example"),
		LedgerAPIKey:       os.Getenv("LEDGER_API_KEY"),
		LedgerTimeout:      getDuration("LEDGER_TIMEOUT", 15*time.Second),
		ReconcileDelay:     getDuration("RECONCILE_DELAY", 200*time.Millisecond),
		ReconcileTolerance: getFloat("RECONCILE_TOLERANCE", 0.01),
		FeePreset:          fees.PresetByName(os.Getenv("FEE_PRESET")),
		ServiceFeeRate:     getFloat("SERVICE_FEE_RATE", fees.DefaultServiceFeeRate),
		ProcessingFeeRate:  getFloat("PROCESSING_FEE_RATE", fees.DefaultProcessingFeeRate),
		ProcessingFeeFixed: getFloat("PROCESSING_FEE_FIXED", fees.DefaultProcessingFeeFixed),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", fallback)
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return f
		}
		slog.Warn("invalid float, using default", "key", key, "value", v, "default", fallback)
	}
	return fallback
}
