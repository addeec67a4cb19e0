// Command validate checks that a persisted aggregate file matches its input
// table. It rebuilds the aggregate from the input, compares it cell by cell
// with the file, checks row ordering and the AQI range, and verifies that
// re-encoding the file reproduces it byte for byte.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -input data/city_day.csv \
//	  -aggregate data/processed_city_yearly.csv
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/store"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/table"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// tolerance for comparing means recomputed from the input with the
// decimal text in the aggregate file.
const tolerance = 1e-9

// maxReported caps the errors printed per phase.
const maxReported = 20

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	input := flag.String("input", "", "input table (csv, csv.gz, csv.zst, xlsx or parquet)")
	aggregate := flag.String("aggregate", "", "persisted aggregate CSV")
	flag.Parse()

	if *input == "" || *aggregate == "" {
		flag.Usage()
		os.Exit(1)
	}

	os.Exit(run(*input, *aggregate))
}

func run(inputPath, aggregatePath string) int {
	fmt.Println("=== Aggregate Integrity Validation ===")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	raw, err := table.NewReader(inputPath, logger).Extract(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read input: %v\n", err)
		return 1
	}
	normalized := domain.Normalize(raw)
	want := domain.BuildAggregate(normalized)

	persisted, err := os.ReadFile(aggregatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read aggregate: %v\n", err)
		return 1
	}
	got, err := store.Decode(bytes.NewReader(persisted))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: decode aggregate: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateShape(want, got),
		validateValues(want, got),
		validateOrdering(got),
		validateSeverityRange(got),
		validateRoundTrip(persisted, got),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d input, %d normalized, %d aggregate\n",
		normalized.RawRows, len(normalized.Records), len(got.Rows))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i == maxReported {
				fmt.Printf("  ... and %d more\n", len(p.errors)-maxReported)
				break
			}
			fmt.Printf("  %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	return 0
}

func validateShape(want, got domain.Aggregate) *phase {
	p := &phase{name: "Pollutant columns and row count"}

	if len(want.Pollutants) != len(got.Pollutants) {
		p.errorf("pollutants: want %v, got %v", want.Pollutants, got.Pollutants)
	} else {
		for i := range want.Pollutants {
			if want.Pollutants[i] != got.Pollutants[i] {
				p.errorf("pollutant column %d: want %q, got %q", i, want.Pollutants[i], got.Pollutants[i])
			}
		}
	}
	if len(want.Rows) != len(got.Rows) {
		p.errorf("rows: want %d, got %d", len(want.Rows), len(got.Rows))
	}
	return p
}

func validateValues(want, got domain.Aggregate) *phase {
	p := &phase{name: "Yearly means match recomputation"}

	type key struct {
		city string
		year int
	}
	persisted := make(map[key]domain.YearlyRow, len(got.Rows))
	for _, row := range got.Rows {
		persisted[key{row.City, row.Year}] = row
	}

	for _, row := range want.Rows {
		other, ok := persisted[key{row.City, row.Year}]
		if !ok {
			p.errorf("%s %d: missing from aggregate file", row.City, row.Year)
			continue
		}
		for _, pollutant := range want.Pollutants {
			w := want.Value(row, pollutant)
			g := got.Value(other, pollutant)
			if !sameValue(w, g) {
				p.errorf("%s %d %s: want %v, got %v", row.City, row.Year, pollutant, w, g)
			}
		}
	}
	return p
}

func validateOrdering(agg domain.Aggregate) *phase {
	p := &phase{name: "Rows sorted by city then year"}
	for i := 1; i < len(agg.Rows); i++ {
		prev, cur := agg.Rows[i-1], agg.Rows[i]
		if prev.City > cur.City || (prev.City == cur.City && prev.Year >= cur.Year) {
			p.errorf("row %d (%s %d) after (%s %d)", i+1, cur.City, cur.Year, prev.City, prev.Year)
		}
	}
	return p
}

func validateSeverityRange(agg domain.Aggregate) *phase {
	p := &phase{name: "AQI within 0-500"}
	if !agg.HasPollutant(domain.SeverityIndex) {
		p.errorf("aggregate has no %s column", domain.SeverityIndex)
		return p
	}
	for _, row := range agg.Rows {
		v := agg.Value(row, domain.SeverityIndex)
		if domain.IsMissing(v) {
			continue
		}
		if v < 0 || v > domain.MaxSeverity {
			p.errorf("%s %d: AQI %v out of range", row.City, row.Year, v)
		}
	}
	return p
}

func validateRoundTrip(persisted []byte, agg domain.Aggregate) *phase {
	p := &phase{name: "Re-encoding reproduces the file"}
	var buf bytes.Buffer
	if err := store.Encode(&buf, agg); err != nil {
		p.errorf("encode: %v", err)
		return p
	}
	if !bytes.Equal(buf.Bytes(), persisted) {
		p.errorf("re-encoded file differs (%d bytes vs %d bytes)", buf.Len(), len(persisted))
	}
	return p
}

func sameValue(want, got float64) bool {
	if domain.IsMissing(want) || domain.IsMissing(got) {
		return domain.IsMissing(want) && domain.IsMissing(got)
	}
	return math.Abs(want-got) <= tolerance*math.Max(1, math.Abs(want))
}
