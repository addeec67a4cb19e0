package domain

import (
	"math"
	"sort"
)

type groupKey struct {
	city string
	year int
}

type groupAcc struct {
	sums   []float64
	counts []int
}

// BuildAggregate groups normalized records by (city, year) and takes the mean
// of each pollutant over its valid readings. A missing reading only leaves
// that pollutant's mean; the row still counts for the others. Groups without
// any valid reading for a pollutant get NaN.
func BuildAggregate(t NormalizedTable) Aggregate {
	groups := make(map[groupKey]*groupAcc)
	keys := make([]groupKey, 0)

	for _, rec := range t.Records {
		k := groupKey{city: rec.City, year: rec.Year}
		acc, ok := groups[k]
		if !ok {
			acc = &groupAcc{
				sums:   make([]float64, len(t.Pollutants)),
				counts: make([]int, len(t.Pollutants)),
			}
			groups[k] = acc
			keys = append(keys, k)
		}
		for i, p := range t.Pollutants {
			v, ok := rec.Values[p]
			if !ok || IsMissing(v) {
				continue
			}
			acc.sums[i] += v
			acc.counts[i]++
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].city != keys[j].city {
			return keys[i].city < keys[j].city
		}
		return keys[i].year < keys[j].year
	})

	rows := make([]YearlyRow, 0, len(keys))
	for _, k := range keys {
		acc := groups[k]
		values := make([]float64, len(t.Pollutants))
		for i := range values {
			if acc.counts[i] == 0 {
				values[i] = math.NaN()
				continue
			}
			values[i] = acc.sums[i] / float64(acc.counts[i])
		}
		rows = append(rows, YearlyRow{City: k.city, Year: k.year, Values: values})
	}

	pollutants := make([]string, len(t.Pollutants))
	copy(pollutants, t.Pollutants)
	return Aggregate{Pollutants: pollutants, Rows: rows}
}
