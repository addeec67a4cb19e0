package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/store"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/table"
	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/forecast"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/session"
	"github.com/spf13/cobra"
)

var (
	// Global flags override the matching environment variables.
	inputPath  string
	outputPath string
	logLevel   string
)

// newMetrics is replaced in tests, which build many apps in one process.
var newMetrics = observability.NewMetrics

var rootCmd = &cobra.Command{
	Use:   "aqi",
	Short: "Yearly air-quality aggregation, queries and forecasts",
	Long: `aqi turns a daily city air-quality table into a per-city yearly aggregate
and answers questions about it.

Run without a subcommand to process the input (same as "aqi process").

Examples:
  aqi
  aqi --input data/city_day.csv.gz process
  aqi series --city Delhi --pollutant PM2.5
  aqi top --start 2018 --end 2020 -n 5
  aqi forecast --city Delhi --horizon 3
  aqi serve`,
	SilenceUsage: true,
	RunE:         runProcess,
}

// Execute runs the command tree. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&inputPath, "input", "", "input table (default $AQI_INPUT_PATH)")
	rootCmd.PersistentFlags().StringVar(&outputPath, "output", "", "aggregate file (default $AQI_OUTPUT_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug|info|warn|error (default $LOG_LEVEL)")
}

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	reader  *table.Reader
	store   *store.CSVStore
	session *session.Session
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if inputPath != "" {
		cfg.InputPath = inputPath
	}
	if outputPath != "" {
		cfg.OutputPath = outputPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger := observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	metrics := newMetrics()

	csvStore := store.NewCSVStore(cfg.OutputPath, logger)
	forecaster := forecast.New(forecast.Capabilities{PrimaryEnabled: cfg.ForecastPrimaryEnabled}, logger, metrics)

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		reader:  table.NewReader(cfg.InputPath, logger),
		store:   csvStore,
		session: session.New(csvStore, forecaster, logger, metrics, cfg.ForecastCacheSize),
	}, nil
}
