package domain

import (
	"errors"
	"math"
	"sort"
	"time"
)

// ErrMissingInput reports that a required input table does not exist.
var ErrMissingInput = errors.New("missing required input")

const (
	// SeverityIndex is the column holding the air quality index.
	SeverityIndex = "AQI"
	// FineParticulate is the column used to estimate a missing AQI.
	FineParticulate = "PM2.5"

	// MaxSeverity is the upper end of the AQI scale.
	MaxSeverity = 500.0
)

// Vocabulary lists every recognized pollutant in canonical order.
var Vocabulary = []string{
	SeverityIndex, FineParticulate, "PM10", "NO", "NO2", "NOx", "NH3", "CO",
	"SO2", "O3", "Benzene", "Toluene", "Xylene",
}

// RawTable is an input table exactly as read: a header and string cells.
type RawTable struct {
	Header []string
	Rows   [][]string
}

// Record is one normalized measurement row. Values holds a reading per
// recognized pollutant column; missing readings are NaN.
type Record struct {
	City   string
	Date   time.Time
	Year   int
	Values map[string]float64
}

// NormalizedTable is the output of Normalize.
type NormalizedTable struct {
	Records    []Record
	Pollutants []string

	RawRows           int
	SeverityEstimated bool
}

// DroppedRows returns the number of raw rows discarded during normalization.
func (t NormalizedTable) DroppedRows() int {
	return t.RawRows - len(t.Records)
}

// YearlyRow holds the per-pollutant means for one (city, year) group.
// Values is indexed like Aggregate.Pollutants.
type YearlyRow struct {
	City   string
	Year   int
	Values []float64
}

// Aggregate is the per-(city, year) mean table. Rows are sorted by city,
// then year.
type Aggregate struct {
	Pollutants []string
	Rows       []YearlyRow
}

// Point is a single (year, value) observation.
type Point struct {
	Year  int     `json:"year"`
	Value float64 `json:"value"`
}

// IsMissing reports whether v represents an absent reading.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Column returns the index of pollutant within each row's Values.
func (a Aggregate) Column(pollutant string) (int, bool) {
	for i, p := range a.Pollutants {
		if p == pollutant {
			return i, true
		}
	}
	return 0, false
}

// HasPollutant reports whether the aggregate carries the pollutant.
func (a Aggregate) HasPollutant(pollutant string) bool {
	_, ok := a.Column(pollutant)
	return ok
}

// Cities returns the distinct city names in lexicographic order.
func (a Aggregate) Cities() []string {
	seen := make(map[string]struct{}, len(a.Rows))
	cities := make([]string, 0)
	for _, r := range a.Rows {
		if _, ok := seen[r.City]; ok {
			continue
		}
		seen[r.City] = struct{}{}
		cities = append(cities, r.City)
	}
	sort.Strings(cities)
	return cities
}

// Years returns the distinct years in ascending order.
func (a Aggregate) Years() []int {
	seen := make(map[int]struct{})
	years := make([]int, 0)
	for _, r := range a.Rows {
		if _, ok := seen[r.Year]; ok {
			continue
		}
		seen[r.Year] = struct{}{}
		years = append(years, r.Year)
	}
	sort.Ints(years)
	return years
}

// Value returns the mean of pollutant for a row, NaN when unknown.
func (a Aggregate) Value(row YearlyRow, pollutant string) float64 {
	i, ok := a.Column(pollutant)
	if !ok || i >= len(row.Values) {
		return math.NaN()
	}
	return row.Values[i]
}
