// File path: internal/orchestrator/config.go
package orchestrator

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// TopK and Threshold tune the document retrieval pipeline. The
	// threshold is calibrated against batch min-max similarity scores.
	TopK      int
	Threshold float64

	WebResults int

	// MaxFilterRows bounds the structured-filter result handed to the
	// generator; a larger match falls back to semantic search over the
	// sensor collection.
	MaxFilterRows int

	// Semantic-search window over the sensor collection: start size,
	// growth factor per retry, hard cap. Exhaustion yields an empty
	// context, never an unbounded loop.
	SensorWindowStart  int
	SensorWindowGrowth int
	SensorWindowCap    int

	// BranchTimeout bounds each retrieval path. On expiry the path is
	// treated as failed and the answer proceeds without its context.
	BranchTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		TopK:               20,
		Threshold:          0.75,
		WebResults:         2,
		MaxFilterRows:      1000,
		SensorWindowStart:  500,
		SensorWindowGrowth: 4,
		SensorWindowCap:    10000,
		BranchTimeout:      30 * time.Second,
	}
}

func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if value := strings.TrimSpace(os.Getenv("FARMCHAT_TOP_K")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse FARMCHAT_TOP_K: %w", err)
		}
		if parsed > 0 {
			cfg.TopK = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("FARMCHAT_THRESHOLD")); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse FARMCHAT_THRESHOLD: %w", err)
		}
		if parsed > 0 && parsed <= 1 {
			cfg.Threshold = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("FARMCHAT_WEB_RESULTS")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse FARMCHAT_WEB_RESULTS: %w", err)
		}
		if parsed > 0 {
			cfg.WebResults = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("FARMCHAT_MAX_FILTER_ROWS")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse FARMCHAT_MAX_FILTER_ROWS: %w", err)
		}
		if parsed > 0 {
			cfg.MaxFilterRows = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("FARMCHAT_BRANCH_TIMEOUT")); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse FARMCHAT_BRANCH_TIMEOUT: %w", err)
		}
		if parsed > 0 {
			cfg.BranchTimeout = parsed
		}
	}
	return cfg, nil
}
