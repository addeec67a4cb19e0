package forecast_test

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/forecast"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type failingModel struct {
	calls int
}

func (m *failingModel) Strategy() forecast.Strategy { return forecast.StrategyARIMA }
func (m *failingModel) MinObservations() int         { return 3 }
func (m *failingModel) Forecast(_ []domain.Point, _ int) ([]float64, error) {
	m.calls++
	return nil, errors.New("singular matrix")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func series(values ...float64) []domain.Point {
	out := make([]domain.Point, len(values))
	for i, v := range values {
		out[i] = domain.Point{Year: 2020 + i, Value: v}
	}
	return out
}

// --- tests ---

func TestForecaster_TwoPointsUsesLinear(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	f := forecast.New(forecast.Capabilities{PrimaryEnabled: true}, discardLogger(), metrics)

	got := f.Forecast(series(500, 250), 3)

	require.True(t, got.OK())
	assert.Equal(t, forecast.StrategyLinear, got.Strategy)
	assert.Contains(t, got.FallbackReason, "arima")
	require.Len(t, got.Points, 3)
	// Closed-form OLS through two points: slope -250 per year.
	for i, want := range []float64{0, -250, -500} {
		assert.Equal(t, 2022+i, got.Points[i].Year)
		assert.InDelta(t, want, got.Points[i].Value, 1e-6)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Forecasts.WithLabelValues("linear")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ForecastFallbacks.WithLabelValues("arima", "insufficient_data")))
}

func TestForecaster_TooFewPoints(t *testing.T) {
	f := forecast.New(forecast.Capabilities{PrimaryEnabled: true}, discardLogger(), observability.NewMetricsForTesting())

	for _, s := range [][]domain.Point{nil, series(42)} {
		got := f.Forecast(s, 5)
		assert.False(t, got.OK())
		assert.Equal(t, forecast.StrategyNone, got.Strategy)
		assert.Empty(t, got.Points)
	}
}

func TestForecaster_NonPositiveHorizon(t *testing.T) {
	f := forecast.New(forecast.Capabilities{PrimaryEnabled: true}, discardLogger(), observability.NewMetricsForTesting())

	got := f.Forecast(series(1, 2, 3, 4), 0)

	assert.Equal(t, forecast.StrategyNone, got.Strategy)
}

func TestForecaster_PrimaryFailureFallsBack(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	primary := &failingModel{}
	f := forecast.NewWithModels(discardLogger(), metrics, primary, forecast.Linear{})

	got := f.Forecast(series(10, 20, 30, 40), 2)

	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, forecast.StrategyLinear, got.Strategy)
	assert.Contains(t, got.FallbackReason, "singular matrix")
	require.Len(t, got.Points, 2)
	assert.InDelta(t, 50, got.Points[0].Value, 1e-6)
	assert.InDelta(t, 60, got.Points[1].Value, 1e-6)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ForecastFallbacks.WithLabelValues("arima", "model_error")))
}

func TestForecaster_PrimaryDisabled(t *testing.T) {
	f := forecast.New(forecast.Capabilities{PrimaryEnabled: false}, discardLogger(), observability.NewMetricsForTesting())

	assert.Equal(t, []forecast.Strategy{forecast.StrategyLinear}, f.Strategies())

	got := f.Forecast(series(10, 20, 30, 40), 2)
	assert.Equal(t, forecast.StrategyLinear, got.Strategy)
	assert.Empty(t, got.FallbackReason)
}

func TestForecaster_PrimaryUsedWithEnoughData(t *testing.T) {
	f := forecast.New(forecast.Capabilities{PrimaryEnabled: true}, discardLogger(), observability.NewMetricsForTesting())

	assert.Equal(t, []forecast.Strategy{forecast.StrategyARIMA, forecast.StrategyLinear}, f.Strategies())

	got := f.Forecast(series(500, 250, 125), 2)

	assert.Equal(t, forecast.StrategyARIMA, got.Strategy)
	require.Len(t, got.Points, 2)
	assert.Less(t, got.Points[0].Value, 125.0)
	assert.Less(t, got.Points[1].Value, got.Points[0].Value)
}

func TestForecaster_YearsContiguous(t *testing.T) {
	f := forecast.New(forecast.Capabilities{PrimaryEnabled: true}, discardLogger(), observability.NewMetricsForTesting())
	unsorted := []domain.Point{{Year: 2019, Value: 80}, {Year: 2015, Value: 60}, {Year: 2017, Value: 75}, {Year: 2016, Value: 70}}

	for _, horizon := range []int{1, 4, 10} {
		got := f.Forecast(unsorted, horizon)
		require.Len(t, got.Points, horizon)
		for i, p := range got.Points {
			assert.Equal(t, 2019+i+1, p.Year)
			assert.False(t, math.IsNaN(p.Value))
		}
	}
}

func TestLinear_EndToEndExample(t *testing.T) {
	got, err := forecast.Linear{}.Forecast(series(500, 250, 125), 2)

	require.NoError(t, err)
	require.Len(t, got, 2)
	// slope = -187.5, intercept at 2021 = 291.666...
	assert.InDelta(t, 291.6666666-2*187.5, got[0], 1e-4)
	assert.InDelta(t, 291.6666666-3*187.5, got[1], 1e-4)
	assert.Less(t, got[1], got[0])
}

func TestARIMA_RecoversAutoregressiveDifferences(t *testing.T) {
	// Differences -250, -125 are fitted exactly by phi = 0.5, so each further
	// difference halves: 62.5, then 31.25.
	got, err := forecast.NewARIMA().Forecast(series(500, 250, 125), 2)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 62.5, got[0], 0.5)
	assert.InDelta(t, 31.25, got[1], 0.5)
}

func TestARIMA_ConstantSeries(t *testing.T) {
	got, err := forecast.NewARIMA().Forecast(series(7, 7, 7, 7, 7), 3)

	require.NoError(t, err)
	for _, v := range got {
		assert.InDelta(t, 7, v, 1e-9)
	}
}

func TestARIMA_RequiresThreeObservations(t *testing.T) {
	_, err := forecast.NewARIMA().Forecast(series(1, 2), 1)
	assert.Error(t, err)
}

// assertDecaying checks that successive forecast steps shrink in magnitude,
// starting from the last observed value.
func assertDecaying(t *testing.T, last float64, values []float64) {
	t.Helper()
	prev := math.Inf(1)
	level := last
	for i, v := range values {
		step := math.Abs(v - level)
		assert.LessOrEqualf(t, step, prev, "step %d grew: %v after %v", i, step, prev)
		if prev != math.Inf(1) && prev > 1e-9 {
			assert.Lessf(t, step, prev, "step %d did not shrink", i)
		}
		prev, level = step, v
	}
}

func TestARIMA_OscillatingSeriesIsRejectedOrDecays(t *testing.T) {
	noisy := [][]float64{
		{180, 210, 195, 230, 160, 175},
		{100, 140, 90, 150, 80, 160, 70},
		{55, 61, 58, 66, 59, 70, 64, 73},
		{300, 280, 310, 270, 320, 260},
	}
	for _, values := range noisy {
		got, err := forecast.NewARIMA().Forecast(series(values...), 6)
		if err != nil {
			assert.Contains(t, err.Error(), "non-stationary")
			continue
		}
		require.Len(t, got, 6)
		assertDecaying(t, values[len(values)-1], got)
	}
}

func TestForecaster_NoPermanentOscillation(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	f := forecast.New(forecast.Capabilities{PrimaryEnabled: true}, discardLogger(), metrics)

	got := f.Forecast(series(180, 210, 195, 230, 160, 175), 6)

	require.True(t, got.OK())
	require.Len(t, got.Points, 6)
	values := make([]float64, len(got.Points))
	for i, p := range got.Points {
		values[i] = p.Value
	}
	switch got.Strategy {
	case forecast.StrategyARIMA:
		assertDecaying(t, 175, values)
	case forecast.StrategyLinear:
		assert.Contains(t, got.FallbackReason, "non-stationary")
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ForecastFallbacks.WithLabelValues("arima", "model_error")))
	default:
		t.Fatalf("unexpected strategy %q", got.Strategy)
	}
}

func TestARIMA_ConstantSeriesSkipsFit(t *testing.T) {
	got, err := forecast.NewARIMA().Forecast(series(42, 42, 42), 4)

	require.NoError(t, err)
	assert.Equal(t, []float64{42, 42, 42, 42}, got)
}
