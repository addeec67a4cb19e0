package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/kafka"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Rebuild the yearly aggregate from the input table",
	Long: `Reads the input table (CSV, gzip or zstd compressed CSV, xlsx or parquet),
normalizes it, aggregates per city and year and writes the aggregate file.
When KAFKA_BROKERS is set every aggregate row is also published.`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	p, closeFn := a.pipeline()
	defer closeFn()

	summary, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}
	return printSummary(cmd.OutOrStdout(), summary)
}

// pipeline wires the reader to the aggregate file, the optional Kafka
// publisher and the in-memory session, in that order. The returned func
// releases the publisher.
func (a *app) pipeline() (*pipeline.Pipeline, func()) {
	loaders := []pipeline.Loader{a.store}
	closeFn := func() {}

	if a.cfg.KafkaEnabled() {
		pub := kafka.NewPublisher(a.cfg, a.logger)
		loaders = append(loaders, pub)
		closeFn = func() {
			if err := pub.Close(); err != nil {
				a.logger.Error("kafka publisher close error", "error", err)
			}
		}
	}
	loaders = append(loaders, a.session)

	return pipeline.New(a.reader, a.logger, a.metrics, loaders...), closeFn
}

func printSummary(w io.Writer, s pipeline.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Input rows\t%d\n", s.RawRows)
	fmt.Fprintf(tw, "Normalized rows\t%d\n", s.NormalizedRows)
	fmt.Fprintf(tw, "Dropped rows\t%d\n", s.DroppedRows)
	fmt.Fprintf(tw, "Aggregate rows\t%d\n", s.AggregateRows)
	fmt.Fprintf(tw, "Cities\t%d\n", s.Cities)
	if s.AggregateRows > 0 {
		fmt.Fprintf(tw, "Years\t%d-%d\n", s.FirstYear, s.LastYear)
	}
	fmt.Fprintf(tw, "Pollutants\t%s\n", strings.Join(s.Pollutants, ", "))
	if s.SeverityEstimated {
		fmt.Fprintf(tw, "AQI\testimated from PM2.5\n")
	}
	fmt.Fprintf(tw, "Output\t%s\n", s.OutputPath)
	fmt.Fprintf(tw, "Duration\t%s\n", s.Duration.Round(time.Millisecond))
	return tw.Flush()
}
