package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleAggregate() domain.Aggregate {
	return domain.Aggregate{
		Pollutants: []string{domain.SeverityIndex, domain.FineParticulate, "NO2"},
		Rows: []domain.YearlyRow{
			{City: "Agra", Year: 2019, Values: []float64{142.25, 61.5, math.NaN()}},
			{City: "Delhi, NCT", Year: 2019, Values: []float64{258.1, 0.1, 20}},
		},
	}
}

func TestEncode_Format(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleAggregate()))

	want := "City,Year,AQI,PM2.5,NO2\n" +
		"Agra,2019,142.25,61.5,\n" +
		"\"Delhi, NCT\",2019,258.1,0.1,20\n"
	assert.Equal(t, want, buf.String())
}

func TestCSVStore_SaveCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "processed_city_yearly.csv")
	s := NewCSVStore(path, discardLogger())

	require.NoError(t, s.LoadAggregate(context.Background(), sampleAggregate()))

	_, err := os.Stat(path)
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should not remain")
}

func TestCSVStore_SaveIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agg.csv")
	s := NewCSVStore(path, discardLogger())

	require.NoError(t, s.LoadAggregate(context.Background(), sampleAggregate()))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, s.LoadAggregate(context.Background(), sampleAggregate()))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCSVStore_ReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agg.csv")
	s := NewCSVStore(path, discardLogger())
	require.NoError(t, s.LoadAggregate(context.Background(), sampleAggregate()))

	got, err := s.ReadAggregate(context.Background())
	require.NoError(t, err)

	if diff := cmp.Diff(sampleAggregate(), got, cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("aggregate mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVStore_ReadMissingFile(t *testing.T) {
	s := NewCSVStore(filepath.Join(t.TempDir(), "absent.csv"), discardLogger())

	_, err := s.ReadAggregate(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMissingInput))
}

func TestDecode_IgnoresUnknownColumnsAndReorders(t *testing.T) {
	in := "City,Year,lat,NO2,AQI\nAgra,2018,27.1,12,90\n"

	got, err := Decode(strings.NewReader(in))

	require.NoError(t, err)
	assert.Equal(t, []string{domain.SeverityIndex, "NO2"}, got.Pollutants)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, []float64{90, 12}, got.Rows[0].Values)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "empty file"},
		{"no year column", "City,AQI\nAgra,1\n", "header must contain"},
		{"bad year", "City,Year,AQI\nAgra,20x8,1\n", "invalid year"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
