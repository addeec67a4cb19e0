package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/forecast"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	"github.com/couchcryptid/air-quality-etl/internal/query"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Querier answers questions about the current aggregate.
type Querier interface {
	ReadinessChecker
	Pollutants(ctx context.Context) ([]string, error)
	Cities(ctx context.Context) ([]string, error)
	Years(ctx context.Context) ([]int, error)
	CitySeries(ctx context.Context, city, pollutant string, bounds query.YearBounds) ([]domain.Point, error)
	TopCities(ctx context.Context, pollutant string, from, to, n int) ([]query.CityMean, error)
	SeverityBucketCounts(ctx context.Context) ([]query.BucketCount, error)
	Overview(ctx context.Context, city, pollutant string, bounds query.YearBounds) (query.CityOverview, bool, error)
	Forecast(ctx context.Context, city, pollutant string, horizon int) (forecast.Result, error)
}

// Reprocessor runs a processing pass on demand.
type Reprocessor interface {
	Run(ctx context.Context) (pipeline.Summary, error)
}

// Options configures the query API.
type Options struct {
	// DefaultHorizon is used when a forecast request has no horizon.
	DefaultHorizon int
	// Reprocessor enables POST /api/v1/reprocess when set.
	Reprocessor Reprocessor
}

// Server exposes the query API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server routing the query API under /api/v1.
func NewServer(addr string, q Querier, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Server {
	r := mux.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	if opts.DefaultHorizon <= 0 {
		opts.DefaultHorizon = 5
	}
	h := &handlers{q: q, reprocessor: opts.Reprocessor, defaultHorizon: opts.DefaultHorizon, logger: logger}

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", handleReady(q)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/pollutants", h.pollutants).Methods(http.MethodGet)
	api.HandleFunc("/cities", h.cities).Methods(http.MethodGet)
	api.HandleFunc("/years", h.years).Methods(http.MethodGet)
	api.HandleFunc("/cities/{city}/series", h.series).Methods(http.MethodGet)
	api.HandleFunc("/cities/{city}/overview", h.overview).Methods(http.MethodGet)
	api.HandleFunc("/cities/{city}/forecast", h.forecast).Methods(http.MethodGet)
	api.HandleFunc("/rankings", h.rankings).Methods(http.MethodGet)
	api.HandleFunc("/severity-buckets", h.severityBuckets).Methods(http.MethodGet)
	if opts.Reprocessor != nil {
		api.HandleFunc("/reprocess", h.reprocess).Methods(http.MethodPost)
	}

	r.Use(loggingMiddleware(logger, metrics))
	r.Use(recoveryMiddleware(logger))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(logger *slog.Logger, metrics *observability.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			elapsed := time.Since(start)
			metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Observe(elapsed.Seconds())
			logger.Debug("http request",
				"method", r.Method,
				"route", route,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", elapsed,
			)
		})
	}
}

func recoveryMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered", "error", err, "path", r.URL.Path)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
