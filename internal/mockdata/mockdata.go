// Package mockdata generates synthetic ensemble snapshots. The fields are an
// analytic mid-level height pattern with a travelling wave; groups of members
// carry the same localized anomaly so the tubing partition has structure to
// find. Output is fully determined by Config.Seed.
package mockdata

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/ensemble-tubing/internal/domain"
)

// Config controls the shape of the generated fixture.
type Config struct {
	Seed      uint64
	Model     string
	Variable  string
	Level     float64
	InitTime  time.Time
	Snapshots int // one per lead time
	StepHours int // lead time increment between snapshots
	Members   int
	Lat       []float64
	Lon       []float64
}

// DefaultConfig is a 20-member 500 hPa height ensemble over the central US.
func DefaultConfig() Config {
	return Config{
		Seed:      20240426,
		Model:     "synthetic_ens",
		Variable:  "hgt",
		Level:     500,
		InitTime:  time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC),
		Snapshots: 8,
		StepHours: 12,
		Members:   20,
		Lat:       Axis(30, 50, 2.5),
		Lon:       Axis(-110, -80, 2.5),
	}
}

// Axis returns start, start+step, ... up to and including stop.
func Axis(start, stop, step float64) []float64 {
	if step <= 0 || stop < start {
		return nil
	}
	n := int(math.Round((stop-start)/step)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// noiseSigma is the per-point member noise in field units at lead time zero.
const noiseSigma = 4.0

type anomaly struct {
	lat, lon  float64
	amplitude float64
	width     float64
}

func (a anomaly) at(lat, lon float64) float64 {
	d2 := (lat-a.lat)*(lat-a.lat) + (lon-a.lon)*(lon-a.lon)
	return a.amplitude * math.Exp(-d2/(2*a.width*a.width))
}

// Generate builds cfg.Snapshots snapshots of cfg.Members members each. The
// first half of the members only carry noise; the rest are split between one
// to three anomaly scenarios per snapshot. Spread grows with lead time.
func Generate(cfg Config) ([]domain.RawSnapshot, error) {
	if cfg.Members < 1 || cfg.Snapshots < 1 {
		return nil, fmt.Errorf("members and snapshots must be positive, got %d and %d", cfg.Members, cfg.Snapshots)
	}
	if len(cfg.Lat) == 0 || len(cfg.Lon) == 0 {
		return nil, errors.New("grid axes must not be empty")
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)) //nolint:gosec // fixtures, not secrets
	snapshots := make([]domain.RawSnapshot, 0, cfg.Snapshots)

	for s := range cfg.Snapshots {
		dtime := s * cfg.StepHours
		growth := 1 + float64(dtime)/48
		scenarios := randomScenarios(rng, cfg, 1+rng.IntN(3))

		rec := domain.RawSnapshot{
			Model:    cfg.Model,
			Variable: cfg.Variable,
			Level:    cfg.Level,
			InitTime: cfg.InitTime,
			DTime:    dtime,
			Lat:      cfg.Lat,
			Lon:      cfg.Lon,
			Members:  make([]domain.RawMember, cfg.Members),
		}

		unperturbed := cfg.Members / 2
		for m := range cfg.Members {
			scenario := -1
			if m >= unperturbed {
				scenario = (m - unperturbed) % len(scenarios)
			}

			values := make([][]float64, len(cfg.Lat))
			for i, lat := range cfg.Lat {
				row := make([]float64, len(cfg.Lon))
				for j, lon := range cfg.Lon {
					v := baseField(lat, lon, dtime)
					if scenario >= 0 {
						v += growth * scenarios[scenario].at(lat, lon)
					}
					row[j] = v + growth*noiseSigma*rng.NormFloat64()
				}
				values[i] = row
			}
			rec.Members[m] = domain.RawMember{Member: m, Values: values}
		}
		snapshots = append(snapshots, rec)
	}
	return snapshots, nil
}

// Key is the message key used when a snapshot is published to Kafka.
func Key(rec domain.RawSnapshot) string {
	return fmt.Sprintf("%s-%s-%g-%s-f%03d",
		rec.Model, rec.Variable, rec.Level, rec.InitTime.UTC().Format("2006010215"), rec.DTime)
}

// baseField is a zonal height gradient with an eastward-moving wave.
func baseField(lat, lon float64, dtime int) float64 {
	phase := 2*math.Pi*(lon+110)/30 - float64(dtime)*math.Pi/48
	return 5880 - 9*(lat-30) + 60*math.Sin(phase)*math.Cos(math.Pi*(lat-40)/40)
}

func randomScenarios(rng *rand.Rand, cfg Config, n int) []anomaly {
	latMin, latMax := cfg.Lat[0], cfg.Lat[len(cfg.Lat)-1]
	lonMin, lonMax := cfg.Lon[0], cfg.Lon[len(cfg.Lon)-1]

	out := make([]anomaly, n)
	for i := range out {
		sign := 1.0
		if rng.IntN(2) == 0 {
			sign = -1
		}
		out[i] = anomaly{
			lat:       latMin + rng.Float64()*(latMax-latMin),
			lon:       lonMin + rng.Float64()*(lonMax-lonMin),
			amplitude: sign * (40 + 50*rng.Float64()),
			width:     4 + 4*rng.Float64(),
		}
	}
	return out
}
