package http

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/forecast"
	"github.com/couchcryptid/air-quality-etl/internal/query"
	"github.com/gorilla/mux"
)

const (
	defaultTopN = 10
	maxHorizon  = 50
)

type handlers struct {
	q              Querier
	reprocessor    Reprocessor
	defaultHorizon int
	logger         *slog.Logger
}

type seriesResponse struct {
	City      string         `json:"city"`
	Pollutant string         `json:"pollutant"`
	Points    []domain.Point `json:"points"`
}

type overviewResponse struct {
	City      string `json:"city"`
	Pollutant string `json:"pollutant"`
	query.CityOverview
}

type forecastResponse struct {
	City      string `json:"city"`
	Pollutant string `json:"pollutant"`
	Horizon   int    `json:"horizon"`
	forecast.Result
}

type rankingsResponse struct {
	Pollutant string           `json:"pollutant"`
	Start     int              `json:"start,omitempty"`
	End       int              `json:"end,omitempty"`
	Cities    []query.CityMean `json:"cities"`
}

func (h *handlers) pollutants(w http.ResponseWriter, r *http.Request) {
	out, err := h.q.Pollutants(r.Context())
	if err != nil {
		h.unavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"pollutants": out})
}

func (h *handlers) cities(w http.ResponseWriter, r *http.Request) {
	out, err := h.q.Cities(r.Context())
	if err != nil {
		h.unavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"cities": out})
}

func (h *handlers) years(w http.ResponseWriter, r *http.Request) {
	out, err := h.q.Years(r.Context())
	if err != nil {
		h.unavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]int{"years": out})
}

func (h *handlers) series(w http.ResponseWriter, r *http.Request) {
	city := mux.Vars(r)["city"]
	pollutant := pollutantParam(r)
	bounds, err := boundsParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := h.q.CitySeries(r.Context(), city, pollutant, bounds)
	if err != nil {
		h.unavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, seriesResponse{City: city, Pollutant: pollutant, Points: points})
}

func (h *handlers) overview(w http.ResponseWriter, r *http.Request) {
	city := mux.Vars(r)["city"]
	pollutant := pollutantParam(r)
	bounds, err := boundsParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ov, ok, err := h.q.Overview(r.Context(), city, pollutant, bounds)
	if err != nil {
		h.unavailable(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no data")
		return
	}
	writeJSON(w, http.StatusOK, overviewResponse{City: city, Pollutant: pollutant, CityOverview: ov})
}

func (h *handlers) forecast(w http.ResponseWriter, r *http.Request) {
	city := mux.Vars(r)["city"]
	pollutant := pollutantParam(r)
	horizon, err := intParam(r, "horizon", h.defaultHorizon)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if horizon < 1 || horizon > maxHorizon {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("horizon must be between 1 and %d", maxHorizon))
		return
	}

	res, err := h.q.Forecast(r.Context(), city, pollutant, horizon)
	if err != nil {
		h.unavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, forecastResponse{City: city, Pollutant: pollutant, Horizon: horizon, Result: res})
}

func (h *handlers) rankings(w http.ResponseWriter, r *http.Request) {
	pollutant := pollutantParam(r)
	bounds, err := boundsParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := intParam(r, "n", defaultTopN)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	from, to := bounds.From, bounds.To
	if to == 0 {
		to = math.MaxInt
	}
	out, err := h.q.TopCities(r.Context(), pollutant, from, to, n)
	if err != nil {
		h.unavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rankingsResponse{Pollutant: pollutant, Start: bounds.From, End: bounds.To, Cities: out})
}

func (h *handlers) severityBuckets(w http.ResponseWriter, r *http.Request) {
	out, err := h.q.SeverityBucketCounts(r.Context())
	if err != nil {
		h.unavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]query.BucketCount{"buckets": out})
}

func (h *handlers) reprocess(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reprocessor.Run(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrMissingInput) {
			status = http.StatusUnprocessableEntity
		}
		h.logger.Error("reprocess failed", "error", err)
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// unavailable reports that no aggregate could be loaded.
func (h *handlers) unavailable(w http.ResponseWriter, err error) {
	h.logger.Warn("aggregate unavailable", "error", err)
	writeError(w, http.StatusServiceUnavailable, err.Error())
}

func pollutantParam(r *http.Request) string {
	if p := strings.TrimSpace(r.URL.Query().Get("pollutant")); p != "" {
		return p
	}
	return domain.SeverityIndex
}

func boundsParams(r *http.Request) (query.YearBounds, error) {
	from, err := intParam(r, "start", 0)
	if err != nil {
		return query.YearBounds{}, err
	}
	to, err := intParam(r, "end", 0)
	if err != nil {
		return query.YearBounds{}, err
	}
	return query.YearBounds{From: from, To: to}, nil
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return n, nil
}
