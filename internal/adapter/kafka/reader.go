package kafka

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/ensemble-tubing/internal/config"
	"github.com/couchcryptid/ensemble-tubing/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Snapshots carry every member's full grid, so messages are far larger than
// kafka-go's 1 MB default.
const maxMessageBytes = 64 << 20

// Reader consumes snapshot messages from a Kafka topic as part of a consumer group.
// It implements pipeline.BatchExtractor.
type Reader struct {
	reader *kafkago.Reader
	cfg    *config.Config
	logger *slog.Logger
}

// NewReader creates a consumer group reader for the configured source topic.
// Offsets are committed explicitly through RawEvent.Commit.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     cfg.KafkaGroupID,
		Topic:       cfg.KafkaSourceTopic,
		MaxBytes:    maxMessageBytes,
		StartOffset: kafkago.FirstOffset,
	})
	return &Reader{reader: r, cfg: cfg, logger: logger}
}

// ExtractBatch fetches up to batchSize messages. It returns early with a
// partial batch once BatchFlushInterval elapses after the call started.
// An empty batch with a nil error means nothing arrived in time. A fetch error
// after at least one message ends the batch early without an error.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error) {
	flushCtx, cancel := context.WithTimeout(ctx, r.cfg.BatchFlushInterval)
	defer cancel()

	batch := make([]domain.RawEvent, 0, batchSize)
	for len(batch) < batchSize {
		msg, err := r.reader.FetchMessage(flushCtx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			if len(batch) > 0 {
				// Messages already fetched are not re-delivered in this
				// session; hand them over and let the next fetch surface err.
				r.logger.Warn("fetch failed mid-batch", "error", err, "fetched", len(batch))
				break
			}
			return nil, err
		}

		raw := mapMessageToRawEvent(msg)
		raw.Commit = func(ctx context.Context) error {
			return r.reader.CommitMessages(ctx, msg)
		}
		batch = append(batch, raw)
	}

	if len(batch) > 0 {
		r.logger.Debug("extracted batch", "size", len(batch), "topic", r.cfg.KafkaSourceTopic)
	}
	return batch, nil
}

// Close leaves the consumer group and closes the underlying connections.
func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToRawEvent copies the transport fields of a Kafka message.
func mapMessageToRawEvent(msg kafkago.Message) domain.RawEvent {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.RawEvent{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
