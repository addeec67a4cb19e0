package forecast

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
)

const (
	reasonInsufficientData = "insufficient_data"
	reasonModelError       = "model_error"
)

// Capabilities selects which models a Forecaster may use.
type Capabilities struct {
	// PrimaryEnabled makes ARIMA available ahead of the linear fallback.
	PrimaryEnabled bool
}

// Result is a forecast and the strategy that produced it.
type Result struct {
	Strategy       Strategy       `json:"strategy"`
	Points         []domain.Point `json:"points"`
	FallbackReason string         `json:"fallback_reason,omitempty"`
}

// OK reports whether a forecast was produced.
func (r Result) OK() bool {
	return r.Strategy != StrategyNone && len(r.Points) > 0
}

// Forecaster chooses among its models per call. It keeps no state between
// calls and is safe for concurrent use.
type Forecaster struct {
	models  []Model
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Forecaster from the given capabilities. The linear model is
// always available as the last resort.
func New(caps Capabilities, logger *slog.Logger, metrics *observability.Metrics) *Forecaster {
	models := make([]Model, 0, 2)
	if caps.PrimaryEnabled {
		models = append(models, NewARIMA())
	}
	models = append(models, Linear{})
	return NewWithModels(logger, metrics, models...)
}

// NewWithModels creates a Forecaster trying models in the given order.
func NewWithModels(logger *slog.Logger, metrics *observability.Metrics, models ...Model) *Forecaster {
	strategies := make([]string, len(models))
	for i, m := range models {
		strategies[i] = string(m.Strategy())
	}
	logger.Debug("forecaster initialized", "strategies", strategies)

	return &Forecaster{
		models:  models,
		logger:  logger,
		metrics: metrics,
	}
}

// Strategies lists the available strategies in the order they are tried.
func (f *Forecaster) Strategies() []Strategy {
	out := make([]Strategy, len(f.models))
	for i, m := range f.models {
		out[i] = m.Strategy()
	}
	return out
}

// Forecast predicts horizon yearly values after the last year of series.
// Returned years are contiguous, starting at the last observed year + 1.
func (f *Forecaster) Forecast(series []domain.Point, horizon int) Result {
	if horizon <= 0 {
		return f.none("non-positive horizon")
	}

	sorted := make([]domain.Point, len(series))
	copy(sorted, series)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Year < sorted[j].Year })

	var reason string
	for _, m := range f.models {
		strategy := m.Strategy()
		if len(sorted) < m.MinObservations() {
			f.metrics.ForecastFallbacks.WithLabelValues(string(strategy), reasonInsufficientData).Inc()
			reason = fmt.Sprintf("%s needs %d observations, have %d", strategy, m.MinObservations(), len(sorted))
			continue
		}

		values, err := m.Forecast(sorted, horizon)
		if err != nil {
			f.metrics.ForecastFallbacks.WithLabelValues(string(strategy), reasonModelError).Inc()
			f.logger.Warn("forecast model failed, falling back",
				"strategy", strategy,
				"observations", len(sorted),
				"error", err,
			)
			reason = fmt.Sprintf("%s failed: %v", strategy, err)
			continue
		}

		last := sorted[len(sorted)-1].Year
		points := make([]domain.Point, len(values))
		for i, v := range values {
			points[i] = domain.Point{Year: last + i + 1, Value: v}
		}

		f.metrics.Forecasts.WithLabelValues(string(strategy)).Inc()
		f.logger.Debug("forecast produced",
			"strategy", strategy,
			"observations", len(sorted),
			"horizon", horizon,
			"fallback_reason", reason,
		)
		return Result{Strategy: strategy, Points: points, FallbackReason: reason}
	}

	return f.none(reason)
}

func (f *Forecaster) none(reason string) Result {
	f.metrics.Forecasts.WithLabelValues(string(StrategyNone)).Inc()
	f.logger.Debug("no forecast possible", "reason", reason)
	return Result{Strategy: StrategyNone, Points: []domain.Point{}, FallbackReason: reason}
}
