package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/couchcryptid/ensemble-tubing/internal/tubing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVariable = "hgt"

func testRawSnapshot() RawSnapshot {
	return RawSnapshot{
		Model:    "ecmwf_ens",
		Variable: testVariable,
		Level:    500,
		InitTime: time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC),
		DTime:    72,
		Lat:      []float64{30, 31},
		Lon:      []float64{110, 111, 112},
		Members: []RawMember{
			{Member: 0, Values: [][]float64{{5800, 5810, 5820}, {5790, 5800, 5810}}},
			{Member: 1, Values: [][]float64{{5802, 5812, 5822}, {5792, 5802, 5812}}},
			{Member: 2, Values: [][]float64{{5798, 5808, 5818}, {5788, 5798, 5808}}},
			{Member: 7, Values: [][]float64{{5700, 5710, 5720}, {5690, 5700, 5710}}},
		},
	}
}

func TestParseRawEvent(t *testing.T) {
	data, err := json.Marshal(testRawSnapshot())
	require.NoError(t, err)

	snap, err := ParseRawEvent(RawEvent{Value: data})
	require.NoError(t, err)

	assert.Equal(t, "ecmwf_ens", snap.Model)
	assert.Equal(t, testVariable, snap.Variable)
	assert.Equal(t, 500.0, snap.Level)
	assert.Equal(t, 72, snap.DTime)
	assert.Equal(t, time.Date(2024, 4, 29, 0, 0, 0, 0, time.UTC), snap.ValidTime())
	assert.Equal(t, []int{0, 1, 2, 7}, snap.MemberIDs)
	assert.Len(t, snap.Ensemble.Members, 4)
	assert.Equal(t, []float64{30, 31}, snap.Ensemble.Grid.Lat)
	assert.Nil(t, snap.Extent)
}

func TestParseRawEvent_InitTimeFromMessage(t *testing.T) {
	rec := testRawSnapshot()
	rec.InitTime = time.Time{}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	ts := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)
	snap, err := ParseRawEvent(RawEvent{Value: data, Timestamp: ts})
	require.NoError(t, err)
	assert.Equal(t, ts, snap.InitTime)
}

func TestParseRawEvent_Extent(t *testing.T) {
	rec := testRawSnapshot()
	rec.Extent = []float64{110, 111.5, 30, 31}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	snap, err := ParseRawEvent(RawEvent{Value: data})
	require.NoError(t, err)
	require.NotNil(t, snap.Extent)
	assert.Equal(t, tubing.Extent{LonMin: 110, LonMax: 111.5, LatMin: 30, LatMax: 31}, *snap.Extent)
}

func TestParseRawEvent_Invalid(t *testing.T) {
	t.Run("invalid JSON", func(t *testing.T) {
		_, err := ParseRawEvent(RawEvent{Value: []byte("{invalid json")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse raw snapshot")
		assert.ErrorIs(t, err, ErrInvalidSnapshot)
	})

	tests := []struct {
		name   string
		mutate func(*RawSnapshot)
		want   string
	}{
		{"missing variable", func(r *RawSnapshot) { r.Variable = " " }, "variable is required"},
		{"missing grid", func(r *RawSnapshot) { r.Lat = nil }, "lat and lon are required"},
		{"negative dtime", func(r *RawSnapshot) { r.DTime = -6 }, "dtime"},
		{"duplicate member", func(r *RawSnapshot) { r.Members[3].Member = 1 }, "member 1 listed twice"},
		{"short row", func(r *RawSnapshot) { r.Members[2].Values[1] = []float64{1, 2} }, "member 2"},
		{"missing row", func(r *RawSnapshot) { r.Members[0].Values = r.Members[0].Values[:1] }, "has 1 rows"},
		{"bad extent", func(r *RawSnapshot) { r.Extent = []float64{1, 2, 3} }, "snapshot extent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testRawSnapshot()
			tt.mutate(&rec)
			data, err := json.Marshal(rec)
			require.NoError(t, err)

			_, err = ParseRawEvent(RawEvent{Value: data})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseRawEvent_GridMismatchIsTyped(t *testing.T) {
	rec := testRawSnapshot()
	rec.Members[1].Values[0] = rec.Members[1].Values[0][:2]
	_, err := NewSnapshot(rec)
	require.ErrorIs(t, err, tubing.ErrGridMismatch)
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
}
