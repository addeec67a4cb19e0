package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
)

// Extractor reads the raw city-day table.
type Extractor interface {
	Extract(ctx context.Context) (domain.RawTable, error)
}

// Loader receives the finished aggregate. Loaders run in the order given to
// New; the first failure aborts the run.
type Loader interface {
	LoadAggregate(ctx context.Context, agg domain.Aggregate) error
}

// pathLoader is a Loader that writes to a file.
type pathLoader interface {
	Path() string
}

const (
	outcomeSuccess      = "success"
	outcomeMissingInput = "missing_input"
	outcomeError        = "error"
)

// Summary describes one completed processing run.
type Summary struct {
	RawRows           int           `json:"raw_rows"`
	NormalizedRows    int           `json:"normalized_rows"`
	DroppedRows       int           `json:"dropped_rows"`
	AggregateRows     int           `json:"aggregate_rows"`
	Cities            int           `json:"cities"`
	FirstYear         int           `json:"first_year,omitempty"`
	LastYear          int           `json:"last_year,omitempty"`
	Pollutants        []string      `json:"pollutants"`
	SeverityEstimated bool          `json:"severity_estimated"`
	OutputPath        string        `json:"output_path,omitempty"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration_ns"`
}

// Pipeline runs extract, normalize, aggregate and load as one synchronous
// pass. Concurrent calls to Run are serialized.
type Pipeline struct {
	extractor Extractor
	loaders   []Loader
	logger    *slog.Logger
	metrics   *observability.Metrics
	mu        sync.Mutex
}

// New creates a Pipeline reading from e and handing the aggregate to each
// loader in turn.
func New(e Extractor, logger *slog.Logger, metrics *observability.Metrics, loaders ...Loader) *Pipeline {
	return &Pipeline{
		extractor: e,
		loaders:   loaders,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run performs one processing run. A missing input table fails the run with
// an error wrapping domain.ErrMissingInput and nothing is written.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := clock.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	p.logger.Info("processing run started")

	raw, err := p.extractor.Extract(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrMissingInput) {
			p.fail(outcomeMissingInput, "input table missing", err)
		} else {
			p.fail(outcomeError, "extract failed", err)
		}
		return Summary{}, fmt.Errorf("extract input: %w", err)
	}

	normalized := domain.Normalize(raw)
	agg := domain.BuildAggregate(normalized)

	p.metrics.RowsRead.Add(float64(normalized.RawRows))
	p.metrics.RowsDropped.Add(float64(normalized.DroppedRows()))
	if normalized.DroppedRows() > 0 {
		p.logger.Warn("rows dropped for missing city or invalid date",
			"dropped", normalized.DroppedRows(),
			"raw", normalized.RawRows,
		)
	}
	if normalized.SeverityEstimated {
		p.logger.Info("severity index estimated from fine particulates")
	}

	for _, l := range p.loaders {
		if err := l.LoadAggregate(ctx, agg); err != nil {
			p.fail(outcomeError, "load failed", err)
			return Summary{}, fmt.Errorf("load aggregate: %w", err)
		}
	}

	summary := summarize(normalized, agg)
	summary.OutputPath = p.outputPath()
	summary.StartedAt = start
	summary.Duration = clock.Since(start)

	p.metrics.AggregateRows.Set(float64(summary.AggregateRows))
	p.metrics.RunDuration.Observe(summary.Duration.Seconds())
	p.metrics.Runs.WithLabelValues(outcomeSuccess).Inc()

	p.logger.Info("processing run complete",
		"raw_rows", summary.RawRows,
		"normalized_rows", summary.NormalizedRows,
		"aggregate_rows", summary.AggregateRows,
		"cities", summary.Cities,
		"first_year", summary.FirstYear,
		"last_year", summary.LastYear,
		"pollutants", len(summary.Pollutants),
		"output", summary.OutputPath,
		"duration", summary.Duration,
	)
	return summary, nil
}

func (p *Pipeline) fail(outcome, msg string, err error) {
	p.metrics.Runs.WithLabelValues(outcome).Inc()
	p.logger.Error(msg, "error", err)
}

// outputPath reports the first file-backed loader's location.
func (p *Pipeline) outputPath() string {
	for _, l := range p.loaders {
		if pl, ok := l.(pathLoader); ok {
			return pl.Path()
		}
	}
	return ""
}

func summarize(normalized domain.NormalizedTable, agg domain.Aggregate) Summary {
	s := Summary{
		RawRows:           normalized.RawRows,
		NormalizedRows:    len(normalized.Records),
		DroppedRows:       normalized.DroppedRows(),
		AggregateRows:     len(agg.Rows),
		Cities:            len(agg.Cities()),
		Pollutants:        append([]string{}, agg.Pollutants...),
		SeverityEstimated: normalized.SeverityEstimated,
	}
	if years := agg.Years(); len(years) > 0 {
		s.FirstYear = years[0]
		s.LastYear = years[len(years)-1]
	}
	return s
}
