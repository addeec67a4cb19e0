package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/forecast"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/query"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cityDay = `City,Date,PM2.5,AQI
Delhi,2018-01-01,100,200
Delhi,2018-06-01,50,100
Delhi,2019-01-01,,300
Delhi,2020-01-01,80,250
Mumbai,2018-01-01,20,40
,2018-01-01,1,1
Pune,not-a-date,1,1
`

func setup(t *testing.T) (input, output string) {
	t.Helper()
	newMetrics = observability.NewMetricsForTesting
	t.Cleanup(func() { newMetrics = observability.NewMetrics })

	dir := t.TempDir()
	input = filepath.Join(dir, "city_day.csv")
	output = filepath.Join(dir, "out", "yearly.csv")
	require.NoError(t, os.WriteFile(input, []byte(cityDay), 0o600))

	t.Setenv("AQI_INPUT_PATH", input)
	t.Setenv("AQI_OUTPUT_PATH", output)
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("REPROCESS_SCHEDULE", "")
	t.Setenv("LOG_LEVEL", "error")
	return input, output
}

// execute runs the command tree with fresh flag values.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	inputPath, outputPath, logLevel = "", "", ""
	cityFlag, pollutantFlag = "", domain.SeverityIndex
	startFlag, endFlag, topNFlag, horizonFlag = 0, 0, 10, 0
	jsonFlag = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	if args == nil {
		args = []string{} // nil would fall back to os.Args
	}
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestProcess_WritesAggregate(t *testing.T) {
	_, output := setup(t)

	out, err := execute(t, "process")
	require.NoError(t, err)
	assert.Contains(t, out, "Dropped rows")
	assert.Contains(t, out, "2018-2020")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	want := "City,Year,AQI,PM2.5\n" +
		"Delhi,2018,150,75\n" +
		"Delhi,2019,300,\n" +
		"Delhi,2020,250,80\n" +
		"Mumbai,2018,40,20\n"
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("aggregate file mismatch (-want +got):\n%s", diff)
	}
}

func TestRoot_DefaultsToProcess(t *testing.T) {
	_, output := setup(t)

	_, err := execute(t)
	require.NoError(t, err)
	assert.FileExists(t, output)
}

func TestProcess_MissingInput(t *testing.T) {
	setup(t)

	_, err := execute(t, "--input", filepath.Join(t.TempDir(), "absent.csv"), "process")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingInput)
}

func TestQueries_AfterProcess(t *testing.T) {
	setup(t)
	_, err := execute(t, "process")
	require.NoError(t, err)

	t.Run("series", func(t *testing.T) {
		out, err := execute(t, "series", "--city", "Delhi", "--json")
		require.NoError(t, err)

		var points []domain.Point
		require.NoError(t, json.Unmarshal([]byte(out), &points))
		want := []domain.Point{{Year: 2018, Value: 150}, {Year: 2019, Value: 300}, {Year: 2020, Value: 250}}
		if diff := cmp.Diff(want, points); diff != "" {
			t.Errorf("series mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("top", func(t *testing.T) {
		out, err := execute(t, "top", "--start", "2018", "--end", "2018", "-n", "1", "--json")
		require.NoError(t, err)

		var ranked []query.CityMean
		require.NoError(t, json.Unmarshal([]byte(out), &ranked))
		assert.Equal(t, []query.CityMean{{City: "Delhi", Value: 150}}, ranked)
	})

	t.Run("buckets", func(t *testing.T) {
		out, err := execute(t, "buckets")
		require.NoError(t, err)
		assert.Contains(t, out, "Good")
		assert.Contains(t, out, "Very Poor/Hazardous")
	})

	t.Run("overview", func(t *testing.T) {
		out, err := execute(t, "overview", "--city", "Delhi", "--pollutant", "PM2.5")
		require.NoError(t, err)
		assert.Contains(t, out, "77.50")
		assert.Contains(t, out, "2018-2020")
	})

	t.Run("overview unknown city", func(t *testing.T) {
		_, err := execute(t, "overview", "--city", "Atlantis")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no AQI data for Atlantis")
	})

	t.Run("forecast", func(t *testing.T) {
		out, err := execute(t, "forecast", "--city", "Delhi", "--horizon", "2", "--json")
		require.NoError(t, err)

		var res forecast.Result
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.NotEqual(t, forecast.StrategyNone, res.Strategy)
		require.Len(t, res.Points, 2)
		assert.Equal(t, 2021, res.Points[0].Year)
		assert.Equal(t, 2022, res.Points[1].Year)
	})
}
