package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/forecast"
	"github.com/couchcryptid/air-quality-etl/internal/query"
	"github.com/spf13/cobra"
)

// Query flags, shared by the read-only subcommands.
var (
	cityFlag      string
	pollutantFlag string
	startFlag     int
	endFlag       int
	topNFlag      int
	horizonFlag   int
	jsonFlag      bool
)

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Yearly means of one pollutant for a city",
	RunE:  runSeries,
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Cities with the highest mean of a pollutant over a year range",
	RunE:  runTop,
}

var bucketsCmd = &cobra.Command{
	Use:   "buckets",
	Short: "Count of city-years per AQI severity bucket",
	RunE:  runBuckets,
}

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Mean and year span of a city series",
	RunE:  runOverview,
}

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast the next years of a city series",
	Long: `Forecasts a city series with ARIMA(1,1,1), falling back to a linear trend
when the series is too short or the model cannot be fitted. The strategy used
is always reported.`,
	RunE: runForecast,
}

func init() {
	for _, c := range []*cobra.Command{seriesCmd, overviewCmd, forecastCmd} {
		c.Flags().StringVar(&cityFlag, "city", "", "city name (required)")
		_ = c.MarkFlagRequired("city")
	}
	for _, c := range []*cobra.Command{seriesCmd, topCmd, overviewCmd, forecastCmd} {
		c.Flags().StringVar(&pollutantFlag, "pollutant", domain.SeverityIndex, "pollutant column")
	}
	for _, c := range []*cobra.Command{seriesCmd, topCmd, overviewCmd} {
		c.Flags().IntVar(&startFlag, "start", 0, "first year (inclusive)")
		c.Flags().IntVar(&endFlag, "end", 0, "last year (inclusive)")
	}
	for _, c := range []*cobra.Command{seriesCmd, topCmd, bucketsCmd, overviewCmd, forecastCmd} {
		c.Flags().BoolVar(&jsonFlag, "json", false, "print JSON instead of a table")
		rootCmd.AddCommand(c)
	}
	topCmd.Flags().IntVarP(&topNFlag, "limit", "n", 10, "number of cities")
	forecastCmd.Flags().IntVar(&horizonFlag, "horizon", 0, "years to forecast (default $FORECAST_HORIZON)")
}

func bounds() query.YearBounds {
	return query.YearBounds{From: startFlag, To: endFlag}
}

func runSeries(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	points, err := a.session.CitySeries(cmd.Context(), cityFlag, pollutantFlag, bounds())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonFlag {
		return printJSON(out, points)
	}
	return printPoints(out, "Year", pollutantFlag, points)
}

func runTop(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	to := endFlag
	if to == 0 {
		to = math.MaxInt
	}
	ranked, err := a.session.TopCities(cmd.Context(), pollutantFlag, startFlag, to, topNFlag)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonFlag {
		return printJSON(out, ranked)
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Rank\tCity\t%s\n", pollutantFlag)
	for i, r := range ranked {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\n", i+1, r.City, r.Value)
	}
	return tw.Flush()
}

func runBuckets(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	counts, err := a.session.SeverityBucketCounts(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonFlag {
		return printJSON(out, counts)
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Bucket\tCity-years")
	for _, c := range counts {
		fmt.Fprintf(tw, "%s\t%d\n", c.Label, c.Count)
	}
	return tw.Flush()
}

func runOverview(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ov, ok, err := a.session.Overview(cmd.Context(), cityFlag, pollutantFlag, bounds())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no %s data for %s", pollutantFlag, cityFlag)
	}

	out := cmd.OutOrStdout()
	if jsonFlag {
		return printJSON(out, ov)
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "City\t%s\n", cityFlag)
	fmt.Fprintf(tw, "Mean %s\t%.2f\n", pollutantFlag, ov.Mean)
	fmt.Fprintf(tw, "Years\t%d-%d\n", ov.MinYear, ov.MaxYear)
	return tw.Flush()
}

func runForecast(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	horizon := a.cfg.ForecastHorizon
	if cmd.Flags().Changed("horizon") {
		horizon = horizonFlag
	}

	res, err := a.session.Forecast(cmd.Context(), cityFlag, pollutantFlag, horizon)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonFlag {
		return printJSON(out, res)
	}
	return printForecast(out, res)
}

func printForecast(w io.Writer, res forecast.Result) error {
	fmt.Fprintf(w, "Strategy: %s\n", res.Strategy)
	if res.FallbackReason != "" {
		fmt.Fprintf(w, "Fallback: %s\n", res.FallbackReason)
	}
	if !res.OK() {
		return nil
	}
	return printPoints(w, "Year", pollutantFlag, res.Points)
}

func printPoints(w io.Writer, keyHeader, valueHeader string, points []domain.Point) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\n", keyHeader, valueHeader)
	for _, p := range points {
		fmt.Fprintf(tw, "%d\t%.2f\n", p.Year, p.Value)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
