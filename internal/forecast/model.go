// Package forecast predicts future yearly values of a pollutant series.
//
// A Forecaster holds an ordered, closed set of models decided once at
// construction. Each call tries the models in order: a model is skipped when
// the series is shorter than its minimum, and a model that fails hands over
// to the next one. Failures are logged and counted, never returned. When no
// model can produce a forecast the result has StrategyNone and no points.
package forecast

import (
	"errors"
	"math"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Strategy names the model that produced a forecast.
type Strategy string

const (
	StrategyARIMA  Strategy = "arima"
	StrategyLinear Strategy = "linear"
	StrategyNone   Strategy = "none"
)

var errNonFinite = errors.New("non-finite forecast")

// Model predicts horizon values following the last observation of a series
// sorted by ascending year.
type Model interface {
	Strategy() Strategy
	MinObservations() int
	Forecast(series []domain.Point, horizon int) ([]float64, error)
}

// Linear fits an ordinary least-squares line of value against year.
type Linear struct{}

func (Linear) Strategy() Strategy { return StrategyLinear }

func (Linear) MinObservations() int { return 2 }

func (Linear) Forecast(series []domain.Point, horizon int) ([]float64, error) {
	xs := make([]float64, len(series))
	ys := make([]float64, len(series))
	for i, p := range series {
		xs[i] = float64(p.Year)
		ys[i] = p.Value
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)

	last := series[len(series)-1].Year
	out := make([]float64, horizon)
	for h := range out {
		out[h] = alpha + beta*float64(last+h+1)
	}
	if !allFinite(out) {
		return nil, errNonFinite
	}
	return out, nil
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
