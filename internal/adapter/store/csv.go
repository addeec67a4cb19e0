// Package store persists the yearly aggregate as a flat CSV file:
//
//	City,Year,AQI,PM2.5,...
//	Delhi,2019,238.5,112.25
//
// Pollutant columns follow vocabulary order. A group without any valid
// reading is written as an empty cell. Output is deterministic, so saving the
// same aggregate twice produces identical bytes.
package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

const (
	cityHeader = "City"
	yearHeader = "Year"
)

// CSVStore reads and writes the aggregate file at a fixed path.
// It implements pipeline.Loader and session.Source.
type CSVStore struct {
	path   string
	logger *slog.Logger
}

// NewCSVStore creates a store for the given file path.
func NewCSVStore(path string, logger *slog.Logger) *CSVStore {
	return &CSVStore{path: path, logger: logger}
}

// Path returns the aggregate file location.
func (s *CSVStore) Path() string {
	return s.path
}

// LoadAggregate writes agg to the store path, replacing any previous file.
// Missing parent directories are created. The file is written to a temporary
// sibling first and renamed into place.
func (s *CSVStore) LoadAggregate(ctx context.Context, agg domain.Aggregate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create aggregate dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create aggregate temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if err := Encode(tmp, agg); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close aggregate temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod aggregate file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace aggregate file: %w", err)
	}

	s.logger.Info("aggregate saved", "path", s.path, "rows", len(agg.Rows))
	return nil
}

// ReadAggregate loads the aggregate file. A missing file is reported as
// domain.ErrMissingInput.
func (s *CSVStore) ReadAggregate(ctx context.Context) (domain.Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return domain.Aggregate{}, err
	}

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Aggregate{}, fmt.Errorf("%w: aggregate %s", domain.ErrMissingInput, s.path)
	}
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("open aggregate: %w", err)
	}
	defer f.Close()

	agg, err := Decode(f)
	if err != nil {
		return domain.Aggregate{}, err
	}
	s.logger.Debug("aggregate loaded", "path", s.path, "rows", len(agg.Rows))
	return agg, nil
}

// Encode writes agg as CSV.
func Encode(w io.Writer, agg domain.Aggregate) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(agg.Pollutants)+2)
	header = append(header, cityHeader, yearHeader)
	header = append(header, agg.Pollutants...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write aggregate header: %w", err)
	}

	record := make([]string, len(header))
	for _, row := range agg.Rows {
		record[0] = row.City
		record[1] = strconv.Itoa(row.Year)
		for i := range agg.Pollutants {
			record[i+2] = formatValue(row.Values[i])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write aggregate row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush aggregate: %w", err)
	}
	return nil
}

// Decode reads an aggregate CSV. Columns outside the pollutant vocabulary are
// ignored; recognized pollutants are returned in vocabulary order.
func Decode(r io.Reader) (domain.Aggregate, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.Aggregate{}, errors.New("decode aggregate: empty file")
	}
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("decode aggregate header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))] = i
	}
	cityIdx, okCity := index[cityHeader]
	yearIdx, okYear := index[yearHeader]
	if !okCity || !okYear {
		return domain.Aggregate{}, fmt.Errorf("decode aggregate: header must contain %s and %s", cityHeader, yearHeader)
	}

	var pollutants []string
	var columns []int
	for _, p := range domain.Vocabulary {
		if i, ok := index[p]; ok {
			pollutants = append(pollutants, p)
			columns = append(columns, i)
		}
	}

	agg := domain.Aggregate{Pollutants: pollutants}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Aggregate{}, fmt.Errorf("decode aggregate line %d: %w", line, err)
		}

		year, err := strconv.Atoi(strings.TrimSpace(field(rec, yearIdx)))
		if err != nil {
			return domain.Aggregate{}, fmt.Errorf("decode aggregate line %d: invalid year: %w", line, err)
		}
		values := make([]float64, len(columns))
		for i, c := range columns {
			values[i] = domain.ParseReading(field(rec, c))
		}
		agg.Rows = append(agg.Rows, domain.YearlyRow{
			City:   field(rec, cityIdx),
			Year:   year,
			Values: values,
		})
	}
	return agg, nil
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return rec[i]
}
