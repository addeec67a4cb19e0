package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all settings, populated from environment variables.
type Config struct {
	InputPath  string
	OutputPath string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	ForecastHorizon        int
	ForecastPrimaryEnabled bool
	ForecastCacheSize      int

	// Kafka publishing of the aggregate; disabled when no brokers are set.
	KafkaBrokers []string
	KafkaTopic   string

	// ReprocessSchedule is a standard 5-field cron spec for periodic runs
	// while serving. Empty disables scheduling.
	ReprocessSchedule string
}

// KafkaEnabled reports whether the aggregate should be published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where
// unset. Variables from the first .env file found are loaded first; they never
// override variables already set in the environment.
func Load() (*Config, error) {
	loadDotEnv()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	horizon, err := parsePositiveInt("FORECAST_HORIZON", 5)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseNonNegativeInt("FORECAST_CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}
	primary, err := parseBool("FORECAST_PRIMARY_ENABLED", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		InputPath:              envOrDefault("AQI_INPUT_PATH", "data/city_day.csv"),
		OutputPath:             envOrDefault("AQI_OUTPUT_PATH", "data/processed_city_yearly.csv"),
		HTTPAddr:               envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:               envOrDefault("LOG_LEVEL", "info"),
		LogFormat:              envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:        shutdownTimeout,
		ForecastHorizon:        horizon,
		ForecastPrimaryEnabled: primary,
		ForecastCacheSize:      cacheSize,
		KafkaBrokers:           parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:             envOrDefault("KAFKA_TOPIC", "air-quality-yearly"),
		ReprocessSchedule:      strings.TrimSpace(os.Getenv("REPROCESS_SCHEDULE")),
	}

	if cfg.KafkaEnabled() && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if cfg.ReprocessSchedule != "" {
		if _, err := cron.ParseStandard(cfg.ReprocessSchedule); err != nil {
			return nil, fmt.Errorf("invalid REPROCESS_SCHEDULE: %w", err)
		}
	}

	return cfg, nil
}

// loadDotEnv loads the first .env file found in the working directory or next
// to the executable.
func loadDotEnv() {
	paths := []string{".env"}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		paths = append(paths, filepath.Join(dir, ".env"), filepath.Join(dir, "..", ".env"))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	n, err := parseNonNegativeInt(key, fallback)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}

func parseNonNegativeInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}
