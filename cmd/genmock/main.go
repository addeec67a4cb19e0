// Command genmock writes a synthetic daily city air-quality table for local
// runs and tests. Output is deterministic for a given seed. Paths ending in
// .gz are gzip compressed.
//
// Usage:
//
//	go run ./cmd/genmock -out data/city_day.csv -start 2015 -end 2020 -seed 42
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/klauspost/pgzip"
)

// cityProfile sets the baseline pollution level and yearly drift of a city.
type cityProfile struct {
	name  string
	level float64 // multiplier on the pollutant baseline
	trend float64 // fractional change per year
}

var cities = []cityProfile{
	{name: "Ahmedabad", level: 1.3, trend: 0.02},
	{name: "Bengaluru", level: 0.6, trend: -0.01},
	{name: "Chennai", level: 0.7, trend: 0.00},
	{name: "Delhi", level: 1.8, trend: -0.03},
	{name: "Hyderabad", level: 0.8, trend: 0.01},
	{name: "Kolkata", level: 1.2, trend: -0.02},
	{name: "Lucknow", level: 1.5, trend: 0.01},
	{name: "Mumbai", level: 0.9, trend: -0.01},
	{name: "Patna", level: 1.6, trend: 0.03},
}

// baseline is a typical daily mean for each pollutant column before city and
// seasonal scaling.
var baseline = map[string]float64{
	"PM2.5": 60, "PM10": 110, "NO": 15, "NO2": 28, "NOx": 30, "NH3": 20,
	"CO": 1.5, "SO2": 12, "O3": 34, "Benzene": 3, "Toluene": 8, "Xylene": 2,
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/city_day.csv", "output path (.gz for gzip)")
	start := flag.Int("start", 2015, "first year")
	end := flag.Int("end", 2020, "last year")
	seed := flag.Uint64("seed", 42, "random seed")
	missing := flag.Float64("missing", 0.05, "fraction of readings left blank")
	noAQI := flag.Float64("no-aqi", 0.1, "fraction of rows without an AQI value")
	flag.Parse()

	if *end < *start {
		return fmt.Errorf("end year %d before start year %d", *end, *start)
	}
	if *missing < 0 || *missing > 1 || *noAQI < 0 || *noAQI > 1 {
		return fmt.Errorf("fractions must be between 0 and 1")
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *pgzip.Writer
	if strings.HasSuffix(*out, ".gz") {
		gz = pgzip.NewWriter(f)
		w = gz
	}

	g := generator{
		rng:     rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)),
		missing: *missing,
		noAQI:   *noAQI,
	}
	rows, err := g.write(w, *start, *end)
	if err != nil {
		return err
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("close gzip: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	log.Printf("wrote %d rows for %d cities to %s", rows, len(cities), *out)
	return nil
}

type generator struct {
	rng     *rand.Rand
	missing float64
	noAQI   float64
}

func (g generator) write(w io.Writer, start, end int) (int, error) {
	pollutants := domain.Vocabulary[1:]
	header := append([]string{"City", "Date"}, pollutants...)
	header = append(header, domain.SeverityIndex, "AQI_Bucket")

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	for _, c := range cities {
		day := time.Date(start, time.January, 1, 0, 0, 0, 0, time.UTC)
		last := time.Date(end, time.December, 31, 0, 0, 0, 0, time.UTC)
		for ; !day.After(last); day = day.AddDate(0, 0, 1) {
			if err := cw.Write(g.row(c, day, start, pollutants)); err != nil {
				return rows, fmt.Errorf("write row: %w", err)
			}
			rows++
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, fmt.Errorf("flush csv: %w", err)
	}
	return rows, nil
}

func (g generator) row(c cityProfile, day time.Time, start int, pollutants []string) []string {
	// Winter peak, monsoon trough.
	season := 1 + 0.45*math.Cos(2*math.Pi*float64(day.YearDay()-15)/365)
	drift := math.Pow(1+c.trend, float64(day.Year()-start))

	row := make([]string, 0, len(pollutants)+4)
	row = append(row, c.name, day.Format("2006-01-02"))

	var fine, coarse float64
	for _, p := range pollutants {
		v := baseline[p] * c.level * season * drift * math.Exp(0.25*g.rng.NormFloat64())
		switch p {
		case domain.FineParticulate:
			fine = v
		case "PM10":
			coarse = v
		}
		if g.rng.Float64() < g.missing {
			row = append(row, "")
			continue
		}
		row = append(row, strconv.FormatFloat(v, 'f', 2, 64))
	}

	if g.rng.Float64() < g.noAQI {
		return append(row, "", "")
	}
	aqi := math.Min(math.Round(math.Max(fine*2, coarse)), domain.MaxSeverity)
	bucket, _ := domain.ClassifySeverity(aqi)
	return append(row, strconv.FormatFloat(aqi, 'f', 0, 64), bucket.Label)
}
