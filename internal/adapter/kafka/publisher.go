package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// YearlyMessage is the JSON value of one published (city, year) row. Missing
// means are null.
type YearlyMessage struct {
	City   string              `json:"city"`
	Year   int                 `json:"year"`
	Values map[string]*float64 `json:"values"`
}

// Publisher produces one message per aggregate row to a Kafka topic.
// It implements pipeline.Loader.
type Publisher struct {
	writer messageWriter
	topic  string
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured aggregate topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{
		writer: w,
		topic:  cfg.KafkaTopic,
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
}

// LoadAggregate publishes every row of agg in a single WriteMessages call.
// Rows are keyed city|year so a city's history lands on one partition.
func (p *Publisher) LoadAggregate(ctx context.Context, agg domain.Aggregate) error {
	if len(agg.Rows) == 0 {
		return nil
	}

	publishedAt := p.clock.Now().UTC()
	msgs := make([]kafkago.Message, len(agg.Rows))
	for i, row := range agg.Rows {
		msg, err := serializeRow(row, agg.Pollutants, publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish aggregate: %w", err)
	}
	p.logger.Info("aggregate published", "topic", p.topic, "messages", len(msgs))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// MessageKey is the partition key for a (city, year) row.
func MessageKey(city string, year int) string {
	return city + "|" + strconv.Itoa(year)
}

// serializeRow marshals a yearly row into a Kafka message.
func serializeRow(row domain.YearlyRow, pollutants []string, publishedAt time.Time) (kafkago.Message, error) {
	values := make(map[string]*float64, len(pollutants))
	for i, p := range pollutants {
		if v := row.Values[i]; !domain.IsMissing(v) {
			values[p] = &v
		} else {
			values[p] = nil
		}
	}

	data, err := json.Marshal(YearlyMessage{City: row.City, Year: row.Year, Values: values})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize yearly row: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(MessageKey(row.City, row.Year)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "pollutants", Value: []byte(strings.Join(pollutants, ","))},
			{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}
