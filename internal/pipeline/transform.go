package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/ensemble-tubing/internal/domain"
	"github.com/couchcryptid/ensemble-tubing/internal/observability"
	"github.com/couchcryptid/ensemble-tubing/internal/tubing"
)

// TubingTransformer implements Transformer by parsing a snapshot, running
// the tubing computation and serializing the result.
type TubingTransformer struct {
	opts    tubing.Options
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewTransformer creates a TubingTransformer with service-wide options. A
// snapshot's own extent overrides opts.Extent. metrics may be nil; a nil
// logger falls back to slog.Default().
func NewTransformer(opts tubing.Options, metrics *observability.Metrics, logger *slog.Logger) *TubingTransformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TubingTransformer{
		opts:    opts.WithDefaults(),
		metrics: metrics,
		logger:  logger,
	}
}

// Transform implements Transformer.
func (t *TubingTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	event, err := t.Compute(ctx, raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	return domain.SerializeTubingEvent(event)
}

// Compute parses a raw snapshot and returns its tubing event without
// serializing it.
func (t *TubingTransformer) Compute(_ context.Context, raw domain.RawEvent) (domain.TubingEvent, error) {
	snap, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.TubingEvent{}, err
	}
	return t.ComputeSnapshot(snap)
}

// ComputeSnapshot runs tubing on an already parsed snapshot.
func (t *TubingTransformer) ComputeSnapshot(snap domain.Snapshot) (domain.TubingEvent, error) {
	opts := t.opts
	if snap.Extent != nil {
		opts.Extent = snap.Extent
	}

	start := time.Now()
	res, err := tubing.Compute(snap.Ensemble, opts)
	if err != nil {
		return domain.TubingEvent{}, err
	}

	if t.metrics != nil {
		t.metrics.TubingDuration.Observe(time.Since(start).Seconds())
		t.metrics.TubeCount.Observe(float64(len(res.Tubes)))
		t.metrics.CentralClusterSize.Observe(float64(len(res.CentralCluster)))
		t.metrics.OutliersRemoved.Add(float64(len(res.Outliers())))
	}

	event := domain.NewTubingEvent(snap, opts, res)
	t.logger.Debug("snapshot partitioned",
		"id", event.ID,
		"members", event.MemberCount,
		"central", len(event.CentralCluster),
		"tubes", len(event.Tubes),
		"radius", event.Radius,
	)
	return event, nil
}

// ErrorReason classifies a transform error for metrics and logs.
func ErrorReason(err error) string {
	switch {
	case errors.Is(err, tubing.ErrInsufficientMembers):
		return "insufficient_members"
	case errors.Is(err, tubing.ErrNotImplemented):
		return "not_implemented"
	case errors.Is(err, tubing.ErrGridMismatch),
		errors.Is(err, tubing.ErrEmptyExtent),
		errors.Is(err, tubing.ErrInvalidExtent):
		return "grid"
	case errors.Is(err, domain.ErrInvalidSnapshot):
		return "invalid_snapshot"
	default:
		return "other"
	}
}
