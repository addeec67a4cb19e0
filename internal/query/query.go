// Package query answers read-only questions about a yearly aggregate:
// per-city series, city rankings, severity histograms and overviews.
// Every function is total over the aggregate; unknown pollutants and empty
// ranges yield empty results, never errors.
package query

import (
	"sort"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// YearBounds restricts a query to an inclusive year range. A zero bound is
// open.
type YearBounds struct {
	From int
	To   int
}

func (b YearBounds) contains(year int) bool {
	if b.From != 0 && year < b.From {
		return false
	}
	if b.To != 0 && year > b.To {
		return false
	}
	return true
}

// CityMean is a city's mean of one pollutant over a year range.
type CityMean struct {
	City  string  `json:"city"`
	Value float64 `json:"value"`
}

// BucketCount is the number of (city, year) rows in a severity bucket.
type BucketCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// CityOverview summarizes a city series.
type CityOverview struct {
	Mean    float64 `json:"mean"`
	MinYear int     `json:"min_year"`
	MaxYear int     `json:"max_year"`
}

// CitySeries returns the yearly means of pollutant for city, ascending by
// year. Years without a valid mean are omitted.
func CitySeries(agg domain.Aggregate, city, pollutant string, bounds YearBounds) []domain.Point {
	col, ok := agg.Column(pollutant)
	if !ok {
		return []domain.Point{}
	}

	series := make([]domain.Point, 0)
	for _, row := range agg.Rows {
		if row.City != city || !bounds.contains(row.Year) {
			continue
		}
		v := row.Values[col]
		if domain.IsMissing(v) {
			continue
		}
		series = append(series, domain.Point{Year: row.Year, Value: v})
	}
	sort.SliceStable(series, func(i, j int) bool { return series[i].Year < series[j].Year })
	return series
}

// TopCities ranks cities by their mean of pollutant over [from, to],
// highest first, and returns at most n of them. Ties keep city order.
func TopCities(agg domain.Aggregate, pollutant string, from, to, n int) []CityMean {
	col, ok := agg.Column(pollutant)
	if !ok || n <= 0 {
		return []CityMean{}
	}

	type acc struct {
		sum   float64
		count int
	}
	groups := make(map[string]*acc)
	order := make([]string, 0)
	for _, row := range agg.Rows {
		if row.Year < from || row.Year > to {
			continue
		}
		v := row.Values[col]
		if domain.IsMissing(v) {
			continue
		}
		a, ok := groups[row.City]
		if !ok {
			a = &acc{}
			groups[row.City] = a
			order = append(order, row.City)
		}
		a.sum += v
		a.count++
	}
	sort.Strings(order)

	ranked := make([]CityMean, 0, len(order))
	for _, city := range order {
		a := groups[city]
		ranked = append(ranked, CityMean{City: city, Value: a.sum / float64(a.count)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Value > ranked[j].Value })

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// SeverityBucketCounts classifies every row's AQI into the severity buckets.
// All buckets are returned in order, including empty ones. Rows whose AQI is
// missing or outside [0, 500] are not counted. Returns an empty slice when
// the aggregate has no AQI column.
func SeverityBucketCounts(agg domain.Aggregate) []BucketCount {
	col, ok := agg.Column(domain.SeverityIndex)
	if !ok {
		return []BucketCount{}
	}

	counts := make(map[string]int, len(domain.Buckets))
	for _, row := range agg.Rows {
		if b, ok := domain.ClassifySeverity(row.Values[col]); ok {
			counts[b.Label]++
		}
	}

	out := make([]BucketCount, 0, len(domain.Buckets))
	for _, b := range domain.Buckets {
		out = append(out, BucketCount{Label: b.Label, Count: counts[b.Label]})
	}
	return out
}

// Overview returns the mean and year span of a city series. The boolean is
// false when the series is empty. Like CitySeries it ignores years without a
// valid mean, so MinYear and MaxYear span valid years only, not every
// aggregate row of the city within bounds.
func Overview(agg domain.Aggregate, city, pollutant string, bounds YearBounds) (CityOverview, bool) {
	series := CitySeries(agg, city, pollutant, bounds)
	if len(series) == 0 {
		return CityOverview{}, false
	}

	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}
	return CityOverview{
		Mean:    stat.Mean(values, nil),
		MinYear: series[0].Year,
		MaxYear: series[len(series)-1].Year,
	}, true
}
