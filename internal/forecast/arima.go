package forecast

import (
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"gonum.org/v1/gonum/optimize"
)

const (
	defaultMaxEvaluations = 10000

	// maxTheta keeps the moving-average part invertible.
	maxTheta = 0.99
	// maxPhi is the largest |phi| accepted after fitting. Fits at or beyond
	// it are treated as a unit root and rejected.
	maxPhi = 0.98
)

var errNonStationary = errors.New("non-stationary fit")

// ARIMA is an ARIMA(1,1,1) model without constant:
//
//	d[t] = y[t] - y[t-1]
//	d[t] = phi*d[t-1] + e[t] + theta*e[t-1]
//
// phi and theta are fitted by minimizing the conditional sum of squared
// residuals (e[0] = 0) with Nelder-Mead over phi = tanh(x0) and
// theta = maxTheta*tanh(x1). In float64 tanh saturates to exactly 1, so a fit
// with |phi| >= maxPhi fails with errNonStationary instead of forecasting a
// non-decaying oscillation.
type ARIMA struct {
	maxEvaluations int
}

// NewARIMA returns an ARIMA(1,1,1) model.
func NewARIMA() *ARIMA {
	return &ARIMA{maxEvaluations: defaultMaxEvaluations}
}

func (a *ARIMA) Strategy() Strategy { return StrategyARIMA }

func (a *ARIMA) MinObservations() int { return 3 }

func (a *ARIMA) Forecast(series []domain.Point, horizon int) ([]float64, error) {
	if len(series) < a.MinObservations() {
		return nil, fmt.Errorf("arima needs %d observations, got %d", a.MinObservations(), len(series))
	}

	levels := make([]float64, len(series))
	for i, p := range series {
		levels[i] = p.Value
	}
	diffs := make([]float64, len(levels)-1)
	for i := range diffs {
		diffs[i] = levels[i+1] - levels[i]
	}

	if allZero(diffs) {
		out := make([]float64, horizon)
		for h := range out {
			out[h] = levels[len(levels)-1]
		}
		return out, nil
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			_, sse := residuals(diffs, math.Tanh(x[0]), maxTheta*math.Tanh(x[1]))
			return sse
		},
	}
	settings := &optimize.Settings{FuncEvaluations: a.maxEvaluations}
	res, err := optimize.Minimize(problem, []float64{0, 0}, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("fit arima: %w", err)
	}

	phi, theta := math.Tanh(res.X[0]), maxTheta*math.Tanh(res.X[1])
	if math.IsNaN(phi) || math.Abs(phi) >= maxPhi {
		return nil, fmt.Errorf("%w: phi %.4f", errNonStationary, phi)
	}
	eps, _ := residuals(diffs, phi, theta)

	out := make([]float64, horizon)
	level := levels[len(levels)-1]
	step := phi*diffs[len(diffs)-1] + theta*eps[len(eps)-1]
	for h := range out {
		if h > 0 {
			step *= phi
		}
		level += step
		out[h] = level
	}
	if !allFinite(out) {
		return nil, errNonFinite
	}
	return out, nil
}

// residuals returns the one-step residuals of the differenced series and
// their sum of squares.
func residuals(diffs []float64, phi, theta float64) ([]float64, float64) {
	eps := make([]float64, len(diffs))
	var sse float64
	for t := 1; t < len(diffs); t++ {
		eps[t] = diffs[t] - phi*diffs[t-1] - theta*eps[t-1]
		sse += eps[t] * eps[t]
	}
	return eps, sse
}

func allZero(values []float64) bool {
	for _, v := range values {
		if v != 0 {
			return false
		}
	}
	return true
}
