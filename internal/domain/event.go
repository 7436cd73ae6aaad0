package domain

import (
	"context"
	"time"

	"github.com/couchcryptid/ensemble-tubing/internal/tubing"
)

// RawMember is one ensemble member as published by the retrieval service.
type RawMember struct {
	Member int         `json:"member"`
	Values [][]float64 `json:"values"`
}

// RawSnapshot is the JSON structure on the source topic.
type RawSnapshot struct {
	Model    string      `json:"model"`
	Variable string      `json:"variable"`
	Level    float64     `json:"level"`
	InitTime time.Time   `json:"init_time"`
	DTime    int         `json:"dtime"`
	Lat      []float64   `json:"lat"`
	Lon      []float64   `json:"lon"`
	Extent   []float64   `json:"extent,omitempty"` // lon_min, lon_max, lat_min, lat_max
	Members  []RawMember `json:"members"`
}

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Snapshot is a parsed, validated ensemble snapshot ready for tubing.
type Snapshot struct {
	Model    string
	Variable string
	Level    float64
	InitTime time.Time
	DTime    int

	// MemberIDs maps member index (position in Ensemble.Members) to the
	// member number from the message.
	MemberIDs []int
	Ensemble  tubing.Ensemble
	Extent    *tubing.Extent
}

// ValidTime is the time the forecast verifies at.
func (s Snapshot) ValidTime() time.Time {
	return s.InitTime.Add(time.Duration(s.DTime) * time.Hour)
}

// TubeSummary is one tube in a tubing event, in member numbers.
type TubeSummary struct {
	ID              int     `json:"id"`
	Extreme         int     `json:"extreme"`
	ExtremeDistance float64 `json:"extreme_distance"`
	Members         []int   `json:"members"`
}

// TubingEvent is the result published to the sink topic.
type TubingEvent struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Variable  string    `json:"variable"`
	Level     float64   `json:"level"`
	InitTime  time.Time `json:"init_time"`
	DTime     int       `json:"dtime"`
	ValidTime time.Time `json:"valid_time"`

	Mode              string    `json:"mode"`
	ThresholdFraction float64   `json:"threshold_fraction"`
	Extent            []float64 `json:"extent,omitempty"`

	MemberCount    int           `json:"member_count"`
	OutlierMembers []int         `json:"outlier_members,omitempty"`
	CentralCluster []int         `json:"central_cluster"`
	Tubes          []TubeSummary `json:"tubes"`
	TotalVariance  float64       `json:"total_variance"`
	Radius         float64       `json:"radius"`

	ProcessedAt time.Time `json:"processed_at"`
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
