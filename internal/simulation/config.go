package simulation

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	intervalEnvKey            = "SINUSOID_POLL_INTERVAL"
	coordinatorIntervalEnvKey = "SINUSOID_COORDINATOR_INTERVAL"
	seedEnvKey                = "SINUSOID_SEED"
	categoryFileEnvKey        = "SINUSOID_CATEGORY_FILE"
	categoryNameEnvKey        = "SINUSOID_CATEGORY_NAME"
	enabledEnvKey             = "SINUSOID_ENABLED"
)

// IntervalFromEnv reads the poll interval and falls back to the default.
func IntervalFromEnv() time.Duration {
	return IntervalFromString(os.Getenv(intervalEnvKey))
}

// IntervalFromString parses a poll interval with fallback to the default.
func IntervalFromString(raw string) time.Duration {
	return durationFromString(intervalEnvKey, raw, defaultInterval)
}

// CoordinatorIntervalFromEnv reads how often the stored category is checked.
func CoordinatorIntervalFromEnv() time.Duration {
	return durationFromString(coordinatorIntervalEnvKey, os.Getenv(coordinatorIntervalEnvKey), defaultCoordinatorPollInterval)
}

func durationFromString(key, raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", raw, "error", err, "default", fallback)
		return fallback
	}
	if dur <= 0 {
		slog.Warn("non-positive duration, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return dur
}

// SeedFromEnv returns the configured random seed, if any.
func SeedFromEnv() (int64, bool) {
	return seedFromString(os.Getenv(seedEnvKey))
}

func seedFromString(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	seed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("invalid seed, using a time-based seed", "key", seedEnvKey, "value", raw, "error", err)
		return 0, false
	}
	return seed, true
}

// CategoryNameFromEnv returns the stored category key, defaulting to
// DefaultCategoryName.
func CategoryNameFromEnv() string {
	if name := strings.TrimSpace(os.Getenv(categoryNameEnvKey)); name != "" {
		return name
	}
	return DefaultCategoryName
}

// EnabledFromEnv reports whether polling starts enabled. Unset or invalid
// values keep polling on.
func EnabledFromEnv() bool {
	raw := strings.TrimSpace(os.Getenv(enabledEnvKey))
	if raw == "" {
		return true
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("invalid boolean, polling stays enabled", "key", enabledEnvKey, "value", raw, "error", err)
		return true
	}
	return enabled
}
