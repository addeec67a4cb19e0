package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	cityColumn        = "City"
	defaultDateColumn = "Date"
)

// dateLayouts are tried in order. Slash dates are month-first.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006/01/02",
	"2006/01/02 15:04:05",
	"1/2/2006",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/06",
	"01-02-2006",
	"01-02-06",
	"02-Jan-2006",
	"2-Jan-06",
	"Jan 2, 2006",
	"January 2, 2006",
	"20060102",
}

// Normalize repairs a raw measurement table: it trims column names, parses
// dates, drops rows without a valid date or city, derives the year, estimates
// a missing severity index and detects which pollutants are present.
// It never fails; unusable data is dropped or marked missing.
func Normalize(raw RawTable) NormalizedTable {
	header := make([]string, len(raw.Header))
	for i, h := range raw.Header {
		header[i] = strings.TrimSpace(h)
	}

	cityIdx := indexOf(header, cityColumn)
	dateIdx := dateColumn(header)

	columns := make(map[string]int)
	for _, p := range Vocabulary {
		if i := indexOf(header, p); i >= 0 {
			columns[p] = i
		}
	}

	records := make([]Record, 0, len(raw.Rows))
	for _, row := range raw.Rows {
		city := strings.TrimSpace(cell(row, cityIdx))
		if city == "" {
			continue
		}
		date, ok := ParseDate(cell(row, dateIdx))
		if !ok {
			continue
		}

		values := make(map[string]float64, len(columns)+1)
		for p, i := range columns {
			values[p] = ParseReading(cell(row, i))
		}
		records = append(records, Record{
			City:   city,
			Date:   date,
			Year:   date.Year(),
			Values: values,
		})
	}

	_, hasFine := columns[FineParticulate]
	estimated := false
	if !hasValidSeverity(records, columns) {
		estimated = estimateSeverity(records, hasFine)
	}

	pollutants := make([]string, 0, len(Vocabulary))
	for _, p := range Vocabulary {
		_, present := columns[p]
		if present || p == SeverityIndex {
			pollutants = append(pollutants, p)
		}
	}

	return NormalizedTable{
		Records:           records,
		Pollutants:        pollutants,
		RawRows:           len(raw.Rows),
		SeverityEstimated: estimated,
	}
}

// ParseDate parses a date cell with the supported layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseReading parses a numeric cell, returning NaN for empty, unparsable or
// infinite values.
func ParseReading(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// dateColumn picks the first column whose name contains "date", falling back
// to a column literally named "Date". Returns -1 when neither exists.
func dateColumn(header []string) int {
	for i, h := range header {
		if strings.Contains(strings.ToLower(h), "date") {
			return i
		}
	}
	return indexOf(header, defaultDateColumn)
}

func hasValidSeverity(records []Record, columns map[string]int) bool {
	if _, ok := columns[SeverityIndex]; !ok {
		return false
	}
	for _, r := range records {
		if !IsMissing(r.Values[SeverityIndex]) {
			return true
		}
	}
	return false
}

// estimateSeverity fills AQI from PM2.5 scaled so the table maximum maps to
// MaxSeverity. Without PM2.5, or without a positive maximum, AQI stays missing
// and it reports false.
func estimateSeverity(records []Record, hasFine bool) bool {
	peak := math.NaN()
	if hasFine {
		for _, r := range records {
			v := r.Values[FineParticulate]
			if IsMissing(v) {
				continue
			}
			if IsMissing(peak) || v > peak {
				peak = v
			}
		}
	}

	if IsMissing(peak) || peak <= 0 {
		for i := range records {
			records[i].Values[SeverityIndex] = math.NaN()
		}
		return false
	}

	for i := range records {
		v := records[i].Values[FineParticulate]
		if IsMissing(v) {
			v = 0
		}
		records[i].Values[SeverityIndex] = v / peak * MaxSeverity
	}
	return true
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
