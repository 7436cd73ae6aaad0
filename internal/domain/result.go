package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/ensemble-tubing/internal/tubing"
)

// NewTubingEvent converts a tubing result into the published event, replacing
// member indices with member numbers.
func NewTubingEvent(snap Snapshot, opts tubing.Options, res tubing.Result) TubingEvent {
	ids := func(indices []int) []int {
		if indices == nil {
			return nil
		}
		out := make([]int, len(indices))
		for i, idx := range indices {
			out[i] = snap.MemberIDs[idx]
		}
		return out
	}

	tubes := make([]TubeSummary, len(res.Tubes))
	for i, t := range res.Tubes {
		tubes[i] = TubeSummary{
			ID:              t.ID,
			Extreme:         snap.MemberIDs[t.Extreme],
			ExtremeDistance: res.Distances[t.Extreme],
			Members:         ids(t.Members),
		}
	}

	event := TubingEvent{
		ID:                generateID(snap),
		Model:             snap.Model,
		Variable:          snap.Variable,
		Level:             snap.Level,
		InitTime:          snap.InitTime,
		DTime:             snap.DTime,
		ValidTime:         snap.ValidTime(),
		Mode:              opts.Mode.String(),
		ThresholdFraction: opts.ThresholdFraction,
		MemberCount:       len(snap.MemberIDs),
		OutlierMembers:    ids(res.Outliers()),
		CentralCluster:    ids(res.CentralCluster),
		Tubes:             tubes,
		TotalVariance:     res.TotalVariance,
		Radius:            res.Radius,
		ProcessedAt:       clock.Now().UTC(),
	}
	if opts.Extent != nil {
		event.Extent = opts.Extent.Slice()
	}
	return event
}

// generateID produces a deterministic ID from the snapshot's identifying
// fields so that a replayed snapshot maps onto the same downstream key.
func generateID(snap Snapshot) string {
	input := fmt.Sprintf("%s|%s|%g|%s|%d",
		snap.Model, snap.Variable, snap.Level, snap.InitTime.UTC().Format(time.RFC3339), snap.DTime)
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	if snap.Variable == "" {
		return short
	}
	return snap.Variable + "-" + short
}

// SerializeTubingEvent marshals a TubingEvent into an OutputEvent.
func SerializeTubingEvent(event TubingEvent) (OutputEvent, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize tubing event: %w", err)
	}
	return OutputEvent{
		Key:   []byte(event.ID),
		Value: data,
		Headers: map[string]string{
			"variable":     event.Variable,
			"tube_count":   fmt.Sprint(len(event.Tubes)),
			"processed_at": event.ProcessedAt.Format(time.RFC3339),
		},
	}, nil
}
