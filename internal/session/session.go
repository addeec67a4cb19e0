// Package session holds the aggregate that queries and forecasts run against.
// The aggregate is read from its source on first use and can be reloaded or
// replaced by a processing run. Forecasts are memoized per aggregate.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/forecast"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/query"
)

// Source supplies the persisted aggregate.
type Source interface {
	ReadAggregate(ctx context.Context) (domain.Aggregate, error)
}

type forecastKey struct {
	city      string
	pollutant string
	horizon   int
}

// Session serves queries over the current aggregate. Replace and Reload are
// serialized against reads; it is safe for concurrent use.
type Session struct {
	source     Source
	forecaster *forecast.Forecaster
	logger     *slog.Logger
	metrics    *observability.Metrics
	cache      *lruCache[forecastKey, forecast.Result]

	mu     sync.RWMutex
	agg    domain.Aggregate
	loaded bool
}

// New creates a Session. cacheSize bounds the number of memoized forecasts;
// zero disables memoization.
func New(source Source, forecaster *forecast.Forecaster, logger *slog.Logger, metrics *observability.Metrics, cacheSize int) *Session {
	return &Session{
		source:     source,
		forecaster: forecaster,
		logger:     logger,
		metrics:    metrics,
		cache:      newLRUCache[forecastKey, forecast.Result](cacheSize),
	}
}

// CheckReadiness returns nil once an aggregate has been loaded or installed.
func (s *Session) CheckReadiness(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded {
		return errors.New("aggregate not loaded")
	}
	return nil
}

// Reload re-reads the aggregate from the source and drops memoized forecasts.
// On error the previous aggregate stays in place.
func (s *Session) Reload(ctx context.Context) error {
	agg, err := s.source.ReadAggregate(ctx)
	if err != nil {
		return fmt.Errorf("reload aggregate: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.install(agg)
	s.logger.Info("aggregate reloaded", "rows", len(agg.Rows), "pollutants", len(agg.Pollutants))
	return nil
}

// Replace installs agg, typically the output of a processing run.
func (s *Session) Replace(agg domain.Aggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.install(agg)
	s.logger.Info("aggregate replaced", "rows", len(agg.Rows), "pollutants", len(agg.Pollutants))
}

func (s *Session) install(agg domain.Aggregate) {
	s.agg = agg
	s.loaded = true
	s.cache.clear()
	s.metrics.AggregateRows.Set(float64(len(agg.Rows)))
}

// view runs fn under the read lock, loading the aggregate first if needed.
func (s *Session) view(ctx context.Context, fn func(agg domain.Aggregate)) error {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		fn(s.agg)
		return nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	if !s.loaded {
		agg, err := s.source.ReadAggregate(ctx)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("load aggregate: %w", err)
		}
		s.install(agg)
		s.logger.Info("aggregate loaded", "rows", len(agg.Rows), "pollutants", len(agg.Pollutants))
	}
	s.mu.Unlock()

	return s.view(ctx, fn)
}

// Aggregate returns the current aggregate.
func (s *Session) Aggregate(ctx context.Context) (domain.Aggregate, error) {
	var out domain.Aggregate
	err := s.view(ctx, func(agg domain.Aggregate) { out = agg })
	return out, err
}

// Pollutants lists the aggregate's pollutant columns in vocabulary order.
func (s *Session) Pollutants(ctx context.Context) ([]string, error) {
	var out []string
	err := s.view(ctx, func(agg domain.Aggregate) {
		out = append([]string{}, agg.Pollutants...)
	})
	return out, err
}

// Cities lists the distinct cities, sorted.
func (s *Session) Cities(ctx context.Context) ([]string, error) {
	var out []string
	err := s.view(ctx, func(agg domain.Aggregate) { out = agg.Cities() })
	return out, err
}

// Years lists the distinct years, ascending.
func (s *Session) Years(ctx context.Context) ([]int, error) {
	var out []int
	err := s.view(ctx, func(agg domain.Aggregate) { out = agg.Years() })
	return out, err
}

func (s *Session) CitySeries(ctx context.Context, city, pollutant string, bounds query.YearBounds) ([]domain.Point, error) {
	var out []domain.Point
	err := s.view(ctx, func(agg domain.Aggregate) {
		out = query.CitySeries(agg, city, pollutant, bounds)
	})
	return out, err
}

func (s *Session) TopCities(ctx context.Context, pollutant string, from, to, n int) ([]query.CityMean, error) {
	var out []query.CityMean
	err := s.view(ctx, func(agg domain.Aggregate) {
		out = query.TopCities(agg, pollutant, from, to, n)
	})
	return out, err
}

func (s *Session) SeverityBucketCounts(ctx context.Context) ([]query.BucketCount, error) {
	var out []query.BucketCount
	err := s.view(ctx, func(agg domain.Aggregate) {
		out = query.SeverityBucketCounts(agg)
	})
	return out, err
}

// Overview reports false when the city has no valid values in bounds.
func (s *Session) Overview(ctx context.Context, city, pollutant string, bounds query.YearBounds) (query.CityOverview, bool, error) {
	var (
		out query.CityOverview
		ok  bool
	)
	err := s.view(ctx, func(agg domain.Aggregate) {
		out, ok = query.Overview(agg, city, pollutant, bounds)
	})
	return out, ok, err
}

// Forecast predicts horizon years past the city's last observed year using
// its full series. Results are memoized until the aggregate changes.
func (s *Session) Forecast(ctx context.Context, city, pollutant string, horizon int) (forecast.Result, error) {
	key := forecastKey{city: city, pollutant: pollutant, horizon: horizon}

	var out forecast.Result
	err := s.view(ctx, func(agg domain.Aggregate) {
		if cached, ok := s.cache.get(key); ok {
			s.metrics.ForecastCache.WithLabelValues("hit").Inc()
			out = cloneResult(cached)
			return
		}
		s.metrics.ForecastCache.WithLabelValues("miss").Inc()

		series := query.CitySeries(agg, city, pollutant, query.YearBounds{})
		out = s.forecaster.Forecast(series, horizon)
		s.cache.put(key, cloneResult(out))
	})
	return out, err
}

// cloneResult copies Points so cached results never share memory with callers.
func cloneResult(r forecast.Result) forecast.Result {
	r.Points = append([]domain.Point(nil), r.Points...)
	return r
}

// LoadAggregate installs agg as a processing run's final stage.
// It implements pipeline.Loader.
func (s *Session) LoadAggregate(_ context.Context, agg domain.Aggregate) error {
	s.Replace(agg)
	return nil
}
