package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/city_day.csv", cfg.InputPath)
	assert.Equal(t, "data/processed_city_yearly.csv", cfg.OutputPath)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5, cfg.ForecastHorizon)
	assert.True(t, cfg.ForecastPrimaryEnabled)
	assert.Equal(t, 256, cfg.ForecastCacheSize)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, "air-quality-yearly", cfg.KafkaTopic)
	assert.Empty(t, cfg.ReprocessSchedule)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("AQI_INPUT_PATH", "/srv/in/city_day.csv.gz")
	t.Setenv("AQI_OUTPUT_PATH", "/srv/out/yearly.csv")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("FORECAST_HORIZON", "3")
	t.Setenv("FORECAST_PRIMARY_ENABLED", "false")
	t.Setenv("FORECAST_CACHE_SIZE", "0")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_TOPIC", "aq-out")
	t.Setenv("REPROCESS_SCHEDULE", "0 3 * * *")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/in/city_day.csv.gz", cfg.InputPath)
	assert.Equal(t, "/srv/out/yearly.csv", cfg.OutputPath)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 3, cfg.ForecastHorizon)
	assert.False(t, cfg.ForecastPrimaryEnabled)
	assert.Equal(t, 0, cfg.ForecastCacheSize)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "aq-out", cfg.KafkaTopic)
	assert.Equal(t, "0 3 * * *", cfg.ReprocessSchedule)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"FORECAST_HORIZON", "0"},
		{"FORECAST_HORIZON", "five"},
		{"FORECAST_CACHE_SIZE", "-3"},
		{"FORECAST_PRIMARY_ENABLED", "maybe"},
		{"REPROCESS_SCHEDULE", "every tuesday"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("AQI_INPUT_PATH=from-dotenv.csv\nHTTP_ADDR=:7070\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("HTTP_ADDR", ":9999")
	// Cleared so Load sees the value the .env file sets.
	t.Setenv("AQI_INPUT_PATH", "")
	require.NoError(t, os.Unsetenv("AQI_INPUT_PATH"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv.csv", cfg.InputPath)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
}
