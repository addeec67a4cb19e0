// Package table reads the raw city-day input into a domain.RawTable. The
// format is chosen by file extension:
//
//	.csv              plain CSV
//	.gz, .csv.gz      gzip-compressed CSV (parallel decompression)
//	.zst, .csv.zst    zstd-compressed CSV
//	.xlsx             first worksheet of an Excel workbook
//	.parquet          flat Parquet file, leaf column paths joined with "."
//
// Every row is padded or truncated to the header width.
package table

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// Format identifies an input encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatGzip    Format = "gzip"
	FormatZstd    Format = "zstd"
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
)

const utf8BOM = "\uFEFF"

// DetectFormat maps a path to its input format. Unknown extensions are read
// as plain CSV.
func DetectFormat(path string) Format {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		return FormatGzip
	case strings.HasSuffix(lower, ".zst"):
		return FormatZstd
	case strings.HasSuffix(lower, ".xlsx"):
		return FormatXLSX
	case strings.HasSuffix(lower, ".parquet"):
		return FormatParquet
	default:
		return FormatCSV
	}
}

// Reader loads a raw table from a file path.
// It implements pipeline.Extractor.
type Reader struct {
	path   string
	logger *slog.Logger
}

// NewReader creates a Reader for the given input path.
func NewReader(path string, logger *slog.Logger) *Reader {
	return &Reader{path: path, logger: logger}
}

// Path returns the input location.
func (r *Reader) Path() string {
	return r.path
}

// Extract reads the whole input table. A missing file is reported as
// domain.ErrMissingInput before anything is parsed.
func (r *Reader) Extract(ctx context.Context) (domain.RawTable, error) {
	if err := ctx.Err(); err != nil {
		return domain.RawTable{}, err
	}

	info, err := os.Stat(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.RawTable{}, fmt.Errorf("%w: %s", domain.ErrMissingInput, r.path)
	}
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("stat input: %w", err)
	}
	if info.IsDir() {
		return domain.RawTable{}, fmt.Errorf("read input: %s is a directory", r.path)
	}

	format := DetectFormat(r.path)
	var t domain.RawTable
	switch format {
	case FormatXLSX:
		t, err = readXLSX(r.path)
	case FormatParquet:
		t, err = readParquet(r.path)
	default:
		t, err = r.readDelimited(format)
	}
	if err != nil {
		return domain.RawTable{}, err
	}

	r.logger.Info("input table read",
		"path", r.path,
		"format", format,
		"columns", len(t.Header),
		"rows", len(t.Rows),
	)
	return t, nil
}

func (r *Reader) readDelimited(format Format) (domain.RawTable, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	var src io.Reader = f
	switch format {
	case FormatGzip:
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return domain.RawTable{}, fmt.Errorf("open gzip input: %w", err)
		}
		defer gz.Close()
		src = gz
	case FormatZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return domain.RawTable{}, fmt.Errorf("open zstd input: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	return ReadCSV(src)
}

// ReadCSV parses a CSV stream whose first record is the header. An empty
// stream yields an empty table.
func ReadCSV(src io.Reader) (domain.RawTable, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return domain.RawTable{}, nil
	}
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("read csv header: %w", err)
	}

	t := domain.RawTable{Header: cleanHeader(header)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.RawTable{}, fmt.Errorf("read csv row %d: %w", len(t.Rows)+2, err)
		}
		t.Rows = append(t.Rows, fitRow(rec, len(t.Header)))
	}
	return t, nil
}

func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	copy(out, header)
	if len(out) > 0 {
		out[0] = strings.TrimPrefix(out[0], utf8BOM)
	}
	return out
}

// fitRow pads short rows with empty cells and drops cells beyond width.
func fitRow(rec []string, width int) []string {
	if len(rec) == width {
		return rec
	}
	out := make([]string, width)
	copy(out, rec)
	return out
}
