package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/ensemble-tubing/internal/tubing"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { SetClock(nil) })
}

func TestNewTubingEvent(t *testing.T) {
	processed := time.Date(2024, 4, 26, 6, 30, 0, 0, time.UTC)
	freezeClock(t, processed)

	snap, err := NewSnapshot(testRawSnapshot())
	require.NoError(t, err)

	opts := tubing.DefaultOptions()
	res, err := tubing.Compute(snap.Ensemble, opts)
	require.NoError(t, err)

	event := NewTubingEvent(snap, opts, res)

	assert.True(t, strings.HasPrefix(event.ID, testVariable+"-"))
	assert.Equal(t, "spread_dependent", event.Mode)
	assert.Equal(t, 0.5, event.ThresholdFraction)
	assert.Equal(t, 4, event.MemberCount)
	assert.Equal(t, processed, event.ProcessedAt)
	assert.Equal(t, time.Date(2024, 4, 29, 0, 0, 0, 0, time.UTC), event.ValidTime)

	// Members 0, 1 and 2 sit together; member 7 is the lone outlier run and
	// is reported by its member number, not its position.
	assert.ElementsMatch(t, []int{0, 1, 2}, event.CentralCluster)
	require.Len(t, event.Tubes, 1)
	assert.Equal(t, TubeSummary{
		ID:              1,
		Extreme:         7,
		ExtremeDistance: res.Distances[3],
		Members:         []int{7},
	}, event.Tubes[0])
	assert.Equal(t, res.Radius, event.Radius)
	assert.Empty(t, event.OutlierMembers)
	assert.Nil(t, event.Extent)
}

func TestNewTubingEvent_RecordsExtent(t *testing.T) {
	snap, err := NewSnapshot(testRawSnapshot())
	require.NoError(t, err)

	opts := tubing.Options{ThresholdFraction: 0.4, Extent: &tubing.Extent{LonMin: 110, LonMax: 111, LatMin: 30, LatMax: 31}}
	res, err := tubing.Compute(snap.Ensemble, opts)
	require.NoError(t, err)

	event := NewTubingEvent(snap, opts, res)
	assert.Equal(t, []float64{110, 111, 30, 31}, event.Extent)
	assert.Equal(t, 0.4, event.ThresholdFraction)
}

func TestGenerateID_Deterministic(t *testing.T) {
	a, err := NewSnapshot(testRawSnapshot())
	require.NoError(t, err)
	b, err := NewSnapshot(testRawSnapshot())
	require.NoError(t, err)
	assert.Equal(t, generateID(a), generateID(b))

	b.DTime = 96
	assert.NotEqual(t, generateID(a), generateID(b))

	b.Variable = ""
	assert.False(t, strings.Contains(generateID(b), "-"))
}

func TestSerializeTubingEvent(t *testing.T) {
	processed := time.Date(2024, 4, 26, 6, 30, 0, 0, time.UTC)
	event := TubingEvent{
		ID:             "hgt-abc",
		Variable:       testVariable,
		CentralCluster: []int{1, 2},
		Tubes:          []TubeSummary{{ID: 1, Extreme: 3, Members: []int{3}}},
		ProcessedAt:    processed,
	}

	out, err := SerializeTubingEvent(event)
	require.NoError(t, err)
	assert.Equal(t, []byte("hgt-abc"), out.Key)
	assert.Equal(t, testVariable, out.Headers["variable"])
	assert.Equal(t, "1", out.Headers["tube_count"])
	assert.Equal(t, processed.Format(time.RFC3339), out.Headers["processed_at"])

	var decoded TubingEvent
	require.NoError(t, json.Unmarshal(out.Value, &decoded))
	if diff := cmp.Diff(event, decoded); diff != "" {
		t.Fatalf("decoded event mismatch (-want +got):\n%s", diff)
	}
}
