package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/ensemble-tubing/internal/tubing"
)

// ErrInvalidSnapshot marks messages that cannot be turned into a Snapshot.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// ParseRawEvent deserializes a RawEvent's value into a validated Snapshot.
func ParseRawEvent(raw RawEvent) (Snapshot, error) {
	var rec RawSnapshot
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return Snapshot{}, fmt.Errorf("parse raw snapshot: %w: %w", ErrInvalidSnapshot, err)
	}
	if rec.InitTime.IsZero() {
		rec.InitTime = raw.Timestamp
	}
	return NewSnapshot(rec)
}

// NewSnapshot validates a RawSnapshot and converts it into the tubing layout.
func NewSnapshot(rec RawSnapshot) (Snapshot, error) {
	if err := validateRawSnapshot(rec); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Model:     strings.TrimSpace(rec.Model),
		Variable:  strings.TrimSpace(rec.Variable),
		Level:     rec.Level,
		InitTime:  rec.InitTime.UTC(),
		DTime:     rec.DTime,
		MemberIDs: make([]int, len(rec.Members)),
		Ensemble: tubing.Ensemble{
			Grid:    tubing.Grid{Lat: rec.Lat, Lon: rec.Lon},
			Members: make([][][]float64, len(rec.Members)),
		},
	}
	for i, m := range rec.Members {
		snap.MemberIDs[i] = m.Member
		snap.Ensemble.Members[i] = m.Values
	}

	if len(rec.Extent) > 0 {
		extent, err := tubing.ExtentFromSlice(rec.Extent)
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot extent: %w", err)
		}
		snap.Extent = &extent
	}
	return snap, nil
}

// validateRawSnapshot checks the fields the tubing computation cannot work
// without. Member count is left to the tubing package.
func validateRawSnapshot(rec RawSnapshot) error {
	var errs []error
	if strings.TrimSpace(rec.Variable) == "" {
		errs = append(errs, errors.New("variable is required"))
	}
	if len(rec.Lat) == 0 || len(rec.Lon) == 0 {
		errs = append(errs, errors.New("lat and lon are required"))
	}
	if rec.DTime < 0 {
		errs = append(errs, fmt.Errorf("dtime must not be negative, got %d", rec.DTime))
	}

	seen := make(map[int]struct{}, len(rec.Members))
	for i, m := range rec.Members {
		if _, dup := seen[m.Member]; dup {
			errs = append(errs, fmt.Errorf("member %d listed twice", m.Member))
		}
		seen[m.Member] = struct{}{}

		if len(m.Values) != len(rec.Lat) {
			errs = append(errs, fmt.Errorf("%w: member %d (position %d) has %d rows, want %d",
				tubing.ErrGridMismatch, m.Member, i, len(m.Values), len(rec.Lat)))
			continue
		}
		for _, row := range m.Values {
			if len(row) != len(rec.Lon) {
				errs = append(errs, fmt.Errorf("%w: member %d (position %d) has a row of %d values, want %d",
					tubing.ErrGridMismatch, m.Member, i, len(row), len(rec.Lon)))
				break
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, errors.Join(errs...))
	}
	return nil
}
