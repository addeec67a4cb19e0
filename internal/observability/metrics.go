package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for processing
// runs, forecasts, and the query API.
type Metrics struct {
	RowsRead        prometheus.Counter
	RowsDropped     prometheus.Counter
	AggregateRows   prometheus.Gauge
	PipelineRunning prometheus.Gauge

	// Processing run metrics.
	Runs        *prometheus.CounterVec // labels: outcome={success,missing_input,error}
	RunDuration prometheus.Histogram

	// Forecast metrics.
	Forecasts         *prometheus.CounterVec // labels: strategy={arima,linear,none}
	ForecastFallbacks *prometheus.CounterVec // labels: strategy, reason={insufficient_data,model_error}
	ForecastCache     *prometheus.CounterVec // labels: result={hit,miss}

	// Query API metrics.
	HTTPRequests *prometheus.HistogramVec // labels: route, status
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aqi_etl",
			Name:      "rows_read_total",
			Help:      "Total raw measurement rows read from the input table.",
		}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aqi_etl",
			Name:      "rows_dropped_total",
			Help:      "Total raw rows dropped for a missing city or invalid date.",
		}),
		AggregateRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aqi_etl",
			Name:      "aggregate_rows",
			Help:      "Number of (city, year) rows in the current aggregate.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aqi_etl",
			Name:      "pipeline_running",
			Help:      "1 while a processing run is in progress, 0 otherwise.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aqi_etl",
			Name:      "runs_total",
			Help:      "Processing runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aqi_etl",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete extract-normalize-aggregate-persist run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		Forecasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aqi_etl",
			Name:      "forecasts_total",
			Help:      "Forecasts by the strategy that produced them.",
		}, []string{"strategy"}),
		ForecastFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aqi_etl",
			Name:      "forecast_fallbacks_total",
			Help:      "Forecast models skipped or failed, by model and reason.",
		}, []string{"strategy", "reason"}),
		ForecastCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aqi_etl",
			Name:      "forecast_cache_total",
			Help:      "Forecast cache lookups by result.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aqi_etl",
			Name:      "http_request_duration_seconds",
			Help:      "Query API request duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"route", "status"}),
	}

	prometheus.MustRegister(
		m.RowsRead,
		m.RowsDropped,
		m.AggregateRows,
		m.PipelineRunning,
		m.Runs,
		m.RunDuration,
		m.Forecasts,
		m.ForecastFallbacks,
		m.ForecastCache,
		m.HTTPRequests,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RowsRead:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "aqi_etl", Name: "rows_read_total"}),
		RowsDropped:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "aqi_etl", Name: "rows_dropped_total"}),
		AggregateRows:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "aqi_etl", Name: "aggregate_rows"}),
		PipelineRunning:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "aqi_etl", Name: "pipeline_running"}),
		Runs:              prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "aqi_etl", Name: "runs_total"}, []string{"outcome"}),
		RunDuration:       prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "aqi_etl", Name: "run_duration_seconds"}),
		Forecasts:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "aqi_etl", Name: "forecasts_total"}, []string{"strategy"}),
		ForecastFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "aqi_etl", Name: "forecast_fallbacks_total"}, []string{"strategy", "reason"}),
		ForecastCache:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "aqi_etl", Name: "forecast_cache_total"}, []string{"result"}),
		HTTPRequests:      prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "aqi_etl", Name: "http_request_duration_seconds"}, []string{"route", "status"}),
	}
}
