//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/ensemble-tubing/internal/adapter/kafka"
	"github.com/couchcryptid/ensemble-tubing/internal/config"
	"github.com/couchcryptid/ensemble-tubing/internal/domain"
	"github.com/couchcryptid/ensemble-tubing/internal/mockdata"
	"github.com/couchcryptid/ensemble-tubing/internal/observability"
	"github.com/couchcryptid/ensemble-tubing/internal/pipeline"
	"github.com/couchcryptid/ensemble-tubing/internal/tubing"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSourceTopic = "test-source"
	testSinkTopic   = "test-sink"
)

// tubingMessage holds a deserialized message read from the sink topic.
type tubingMessage struct {
	Event   domain.TubingEvent
	Key     string
	Headers map[string]string
}

// readTubing reads a single message from the sink consumer and deserializes it.
func readTubing(ctx context.Context, t *testing.T, consumer *kafkago.Reader) tubingMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var event domain.TubingEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event), "unmarshal sink message")

	return tubingMessage{
		Event:   event,
		Key:     string(msg.Key),
		Headers: headers,
	}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func publishSnapshots(ctx context.Context, t *testing.T, broker string, records []domain.RawSnapshot) {
	t.Helper()

	producer := &kafkago.Writer{
		Addr:       kafkago.TCP(broker),
		Topic:      testSourceTopic,
		BatchBytes: 16 << 20,
	}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(mockdata.Key(rec)),
			Value: payload,
			Time:  rec.InitTime,
		})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

func newSinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader (Extractor) and
// kafka.Writer (Loader) correctly round-trip a snapshot through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, "test-reader")
	records := loadMockData(t)
	publishSnapshots(ctx, t, broker, records[:1])

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte(mockdata.Key(records[0])), raw.Key)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	transformer := pipeline.NewTransformer(tubing.DefaultOptions(), nil, discardLogger())
	out, err := transformer.Transform(ctx, raw)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.OutputEvent{out}))

	tm := readTubing(ctx, t, newSinkConsumer(t, broker))
	assert.Equal(t, "hgt", tm.Headers["variable"])
	assert.Equal(t, fmt.Sprint(len(tm.Event.Tubes)), tm.Headers["tube_count"])
	_, err = time.Parse(time.RFC3339, tm.Headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")

	assert.Equal(t, tm.Key, tm.Event.ID)
	assert.Equal(t, len(records[0].Members), tm.Event.MemberCount)
	assert.NotEmpty(t, tm.Event.CentralCluster)
	assert.NotEmpty(t, tm.Event.Tubes)
}

// TestPipelineEndToEnd wires the full pipeline (Reader → Transformer → Writer)
// with real Kafka and verifies every snapshot produces a complete partition.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, "test-pipeline")
	records := loadMockData(t)
	publishSnapshots(ctx, t, broker, records)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	transformer := pipeline.NewTransformer(tubing.DefaultOptions(), metrics, discardLogger())
	p := pipeline.New(reader, transformer, writer, discardLogger(), metrics, 50, 4)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := newSinkConsumer(t, broker)
	received := make(map[int]tubingMessage, len(records))
	for len(received) < len(records) {
		tm := readTubing(ctx, t, consumer)
		received[tm.Event.DTime] = tm
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	for _, rec := range records {
		tm, ok := received[rec.DTime]
		require.True(t, ok, "missing result for f%03d", rec.DTime)

		event := tm.Event
		assert.Equal(t, rec.InitTime.Add(time.Duration(rec.DTime)*time.Hour), event.ValidTime)
		assert.Equal(t, "spread_dependent", event.Mode)

		// Every member is in exactly one group or is an outlier.
		seen := map[int]int{}
		for _, m := range event.CentralCluster {
			seen[m]++
		}
		for _, tube := range event.Tubes {
			assert.Equal(t, tube.Extreme, tube.Members[0])
			for _, m := range tube.Members {
				seen[m]++
			}
		}
		for _, m := range event.OutlierMembers {
			seen[m]++
		}
		assert.Len(t, seen, len(rec.Members), "f%03d", rec.DTime)
		for m, n := range seen {
			assert.Equal(t, 1, n, "f%03d member %d", rec.DTime, m)
		}
	}

	assert.Equal(t, float64(len(records)), testutil.ToFloat64(metrics.MessagesProduced))
	assert.True(t, p.Ready())
}

// TestPipelineTransformError verifies that undecodable and degenerate snapshots
// are skipped and the pipeline continues processing valid ones.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, "test-poison")
	records := loadMockData(t)

	degenerate := records[1]
	degenerate.Members = degenerate.Members[:2]
	degeneratePayload, err := json.Marshal(degenerate)
	require.NoError(t, err)
	validPayload, err := json.Marshal(records[0])
	require.NoError(t, err)

	producer := &kafkago.Writer{
		Addr:       kafkago.TCP(broker),
		Topic:      testSourceTopic,
		BatchBytes: 16 << 20,
	}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("degenerate"), Value: degeneratePayload},
		kafkago.Message{Key: []byte("good"), Value: validPayload},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	transformer := pipeline.NewTransformer(tubing.DefaultOptions(), metrics, discardLogger())
	p := pipeline.New(reader, transformer, writer, discardLogger(), metrics, 50, 2)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := newSinkConsumer(t, broker)
	tm := readTubing(ctx, t, consumer)
	assert.Equal(t, records[0].DTime, tm.Event.DTime)

	// Verify no second message arrives (the bad snapshots were skipped).
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TransformErrors.WithLabelValues("invalid_snapshot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TransformErrors.WithLabelValues("insufficient_members")))
}
