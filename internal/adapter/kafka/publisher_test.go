package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func newTestPublisher(w messageWriter, now time.Time) *Publisher {
	return &Publisher{
		writer: w,
		topic:  "air-quality-yearly",
		clock:  clockwork.NewFakeClockAt(now),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSerializeRow(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	row := domain.YearlyRow{City: "Delhi", Year: 2019, Values: []float64{238.5, math.NaN()}}

	msg, err := serializeRow(row, []string{domain.SeverityIndex, "NO2"}, now)
	require.NoError(t, err)

	assert.Equal(t, []byte("Delhi|2019"), msg.Key)
	assert.JSONEq(t, `{"city":"Delhi","year":2019,"values":{"AQI":238.5,"NO2":null}}`, string(msg.Value))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "pollutants", msg.Headers[0].Key)
	assert.Equal(t, []byte("AQI,NO2"), msg.Headers[0].Value)
	assert.Equal(t, "published_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestPublisher_LoadAggregate(t *testing.T) {
	w := &mockWriter{}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p := newTestPublisher(w, now)

	agg := domain.Aggregate{
		Pollutants: []string{domain.SeverityIndex},
		Rows: []domain.YearlyRow{
			{City: "Agra", Year: 2018, Values: []float64{90}},
			{City: "Agra", Year: 2019, Values: []float64{110}},
		},
	}
	require.NoError(t, p.LoadAggregate(context.Background(), agg))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "Agra|2019", string(w.msgs[1].Key))

	var decoded YearlyMessage
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &decoded))
	require.NotNil(t, decoded.Values[domain.SeverityIndex])
	assert.Equal(t, 110.0, *decoded.Values[domain.SeverityIndex])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublisher_EmptyAggregateSendsNothing(t *testing.T) {
	w := &mockWriter{err: errors.New("should not be called")}
	p := newTestPublisher(w, time.Now())

	assert.NoError(t, p.LoadAggregate(context.Background(), domain.Aggregate{}))
}

func TestPublisher_WriteErrorWrapped(t *testing.T) {
	w := &mockWriter{err: errors.New("leader not available")}
	p := newTestPublisher(w, time.Now())

	err := p.LoadAggregate(context.Background(), domain.Aggregate{
		Pollutants: []string{domain.SeverityIndex},
		Rows:       []domain.YearlyRow{{City: "Agra", Year: 2018, Values: []float64{1}}},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish aggregate")
	assert.Contains(t, err.Error(), "leader not available")
}
