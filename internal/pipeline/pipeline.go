package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/ensemble-tubing/internal/domain"
	"github.com/couchcryptid/ensemble-tubing/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"golang.org/x/sync/errgroup"
)

// BatchExtractor reads up to batchSize raw snapshots from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw snapshot into an output event.
// Implementations must be safe for concurrent use.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error)
}

// BatchLoader writes multiple output events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

// Pipeline orchestrates the extract-transform-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
	workers     int
}

// New creates a Pipeline with the given stages and observability. Snapshots
// within a batch are transformed by up to workers goroutines.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		workers:     workers,
	}
}

// CheckReadiness returns nil if the pipeline has loaded at least one result,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any snapshots yet")
	}
	return nil
}

// Ready reports whether at least one batch has been loaded.
func (p *Pipeline) Ready() bool { return p.ready.Load() }

// Run executes the batch ETL loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize, "workers", p.workers)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		if len(rawBatch) == 0 {
			p.logger.Error("extract batch failed", "error", err)
			return p.backoffOrStop(ctx, backoff, maxBackoff)
		}
		// Fetched messages are not re-delivered within the session, so a
		// partial batch is processed rather than dropped.
		p.logger.Warn("extract batch ended early", "error", err, "batch_size", len(rawBatch))
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = 200 * time.Millisecond

	loaded, ok := p.transformAndLoad(ctx, rawBatch, backoff, maxBackoff)
	if !ok {
		return false
	}

	if loaded > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}
	return true
}

type transformed struct {
	out domain.OutputEvent
	err error
}

// transformAll runs the transformer over the batch with bounded parallelism.
// Results keep the order of the input batch.
func (p *Pipeline) transformAll(ctx context.Context, rawBatch []domain.RawEvent) []transformed {
	results := make([]transformed, len(rawBatch))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := range rawBatch {
		g.Go(func() error {
			out, err := p.transformer.Transform(ctx, rawBatch[i])
			results[i] = transformed{out: out, err: err}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures are kept per snapshot

	return results
}

// transformAndLoad transforms each snapshot in the batch, loads the successes,
// and commits offsets. Failed snapshots are skipped so one degenerate ensemble
// never blocks the partition, but nothing in the batch is committed until the
// load succeeds: commits are per-partition high-water marks, so committing a
// later failed snapshot would also acknowledge an earlier unloaded one. A
// failed load is retried with backoff. Returns the number of successfully
// loaded results and false if the pipeline should stop.
func (p *Pipeline) transformAndLoad(ctx context.Context, rawBatch []domain.RawEvent, backoff *time.Duration, maxBackoff time.Duration) (int, bool) {
	outBatch := make([]domain.OutputEvent, 0, len(rawBatch))

	for i, res := range p.transformAll(ctx, rawBatch) {
		if res.err != nil {
			raw := rawBatch[i]
			p.logger.Warn("tubing failed, skipping snapshot",
				"error", res.err,
				"reason", ErrorReason(res.err),
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.WithLabelValues(ErrorReason(res.err)).Inc()
			continue
		}
		outBatch = append(outBatch, res.out)
	}

	if len(outBatch) > 0 {
		if !p.loadWithRetry(ctx, outBatch, backoff, maxBackoff) {
			return 0, false
		}
		p.metrics.MessagesProduced.Add(float64(len(outBatch)))
	}

	for _, raw := range rawBatch {
		p.commitOffset(ctx, raw)
	}
	return len(outBatch), true
}

// loadWithRetry loads outBatch, backing off between attempts until it succeeds
// or the context is cancelled. Returns false if the pipeline should stop.
func (p *Pipeline) loadWithRetry(ctx context.Context, outBatch []domain.OutputEvent, backoff *time.Duration, maxBackoff time.Duration) bool {
	for {
		err := p.loader.LoadBatch(ctx, outBatch)
		if err == nil {
			*backoff = 200 * time.Millisecond
			return true
		}
		p.logger.Error("load batch failed, retrying", "error", err, "batch_size", len(outBatch), "backoff", *backoff)
		if !p.backoffOrStop(ctx, backoff, maxBackoff) {
			return false
		}
	}
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
