//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/kafka"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/store"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/table"
	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTopic = "test-air-quality-yearly"

const cityDayCSV = "City,Date,PM2.5,PM10,AQI\n" +
	"Delhi,2018-01-01,110,200,320\n" +
	"Delhi,2018-07-01,90,180,280\n" +
	"Delhi,2019-01-01,80,150,\n" +
	"Agra,2019-03-01,40,90,110\n" +
	",2019-03-02,40,90,110\n"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("aqi-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestPipelineEndToEnd runs a full processing pass from a CSV file to the
// persisted aggregate and the Kafka topic, then reads the topic back.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	dir := t.TempDir()
	input := filepath.Join(dir, "city_day.csv")
	require.NoError(t, os.WriteFile(input, []byte(cityDayCSV), 0o644))
	output := filepath.Join(dir, "out", "processed_city_yearly.csv")

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	publisher := kafka.NewPublisher(cfg, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	csvStore := store.NewCSVStore(output, discardLogger())
	p := pipeline.New(
		table.NewReader(input, discardLogger()),
		discardLogger(),
		observability.NewMetricsForTesting(),
		csvStore,
		publisher,
	)

	summary, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.RawRows)
	assert.Equal(t, 1, summary.DroppedRows)
	assert.Equal(t, 3, summary.AggregateRows)
	assert.Equal(t, output, summary.OutputPath)

	persisted, err := csvStore.ReadAggregate(ctx)
	require.NoError(t, err)
	require.Len(t, persisted.Rows, 3)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	got := make(map[string]kafka.YearlyMessage)
	for len(got) < 3 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from aggregate topic")

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, "AQI,PM2.5,PM10", headers["pollutants"])
		_, err = time.Parse(time.RFC3339, headers["published_at"])
		assert.NoError(t, err, "published_at should be valid RFC3339")

		var m kafka.YearlyMessage
		require.NoError(t, json.Unmarshal(msg.Value, &m))
		got[string(msg.Key)] = m
	}

	delhi2018 := got[kafka.MessageKey("Delhi", 2018)]
	require.NotNil(t, delhi2018.Values[domain.SeverityIndex])
	assert.Equal(t, 300.0, *delhi2018.Values[domain.SeverityIndex])
	assert.Equal(t, 190.0, *delhi2018.Values["PM10"])

	delhi2019 := got[kafka.MessageKey("Delhi", 2019)]
	assert.Nil(t, delhi2019.Values[domain.SeverityIndex], "AQI had no valid readings in 2019")

	assert.Contains(t, got, kafka.MessageKey("Agra", 2019))
}
