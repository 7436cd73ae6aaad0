package tubing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Grid is the lat/lon coordinate system shared by every member of an ensemble.
type Grid struct {
	Lat []float64
	Lon []float64
}

// Ensemble is an ordered set of member fields on one grid. Each member is
// indexed [lat][lon]; the position of a member in Members is its member index.
type Ensemble struct {
	Grid    Grid
	Members [][][]float64
}

// Extent is a lon/lat bounding box restricting the spatial domain used for
// every distance computation. Bounds are inclusive.
type Extent struct {
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
}

// ParseExtent reads "lon_min,lon_max,lat_min,lat_max".
func ParseExtent(s string) (Extent, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Extent{}, fmt.Errorf("%w: want 4 comma-separated values, got %d", ErrInvalidExtent, len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Extent{}, fmt.Errorf("%w: %q: %v", ErrInvalidExtent, p, err)
		}
		v[i] = f
	}
	e := Extent{LonMin: v[0], LonMax: v[1], LatMin: v[2], LatMax: v[3]}
	if err := e.Validate(); err != nil {
		return Extent{}, err
	}
	return e, nil
}

// ExtentFromSlice builds an Extent from the four-float form used on the wire.
func ExtentFromSlice(v []float64) (Extent, error) {
	if len(v) != 4 {
		return Extent{}, fmt.Errorf("%w: want 4 values, got %d", ErrInvalidExtent, len(v))
	}
	e := Extent{LonMin: v[0], LonMax: v[1], LatMin: v[2], LatMax: v[3]}
	return e, e.Validate()
}

// Validate rejects inverted boxes.
func (e Extent) Validate() error {
	if e.LonMin > e.LonMax || e.LatMin > e.LatMax {
		return fmt.Errorf("%w: min exceeds max in %v", ErrInvalidExtent, e.Slice())
	}
	return nil
}

// Bound converts the extent to an orb.Bound in (lon, lat) order.
func (e Extent) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{e.LonMin, e.LatMin},
		Max: orb.Point{e.LonMax, e.LatMax},
	}
}

// Slice returns the extent as [lon_min, lon_max, lat_min, lat_max].
func (e Extent) Slice() []float64 {
	return []float64{e.LonMin, e.LonMax, e.LatMin, e.LatMax}
}

type gridPoint struct {
	lat, lon int
}

// selectPoints lists the grid cells inside the extent, or every cell when the
// extent is nil.
func (g Grid) selectPoints(extent *Extent) ([]gridPoint, error) {
	var bound orb.Bound
	if extent != nil {
		if err := extent.Validate(); err != nil {
			return nil, err
		}
		bound = extent.Bound()
	}

	points := make([]gridPoint, 0, len(g.Lat)*len(g.Lon))
	for i, lat := range g.Lat {
		for j, lon := range g.Lon {
			if extent != nil && !bound.Contains(orb.Point{lon, lat}) {
				continue
			}
			points = append(points, gridPoint{lat: i, lon: j})
		}
	}
	if len(points) == 0 {
		if extent != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmptyExtent, extent.Slice())
		}
		return nil, fmt.Errorf("%w: empty grid", ErrGridMismatch)
	}
	return points, nil
}

// Validate checks that every member matches the grid shape.
func (e Ensemble) Validate() error {
	nLat, nLon := len(e.Grid.Lat), len(e.Grid.Lon)
	for m, field := range e.Members {
		if len(field) != nLat {
			return fmt.Errorf("%w: member %d has %d rows, grid has %d latitudes", ErrGridMismatch, m, len(field), nLat)
		}
		for i, row := range field {
			if len(row) != nLon {
				return fmt.Errorf("%w: member %d row %d has %d values, grid has %d longitudes", ErrGridMismatch, m, i, len(row), nLon)
			}
		}
	}
	return nil
}

// Flatten returns one vector per member holding the values inside the extent,
// in row-major grid order. A nil extent keeps the whole grid.
func (e Ensemble) Flatten(extent *Extent) ([][]float64, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	points, err := e.Grid.selectPoints(extent)
	if err != nil {
		return nil, err
	}

	out := make([][]float64, len(e.Members))
	for m, field := range e.Members {
		v := make([]float64, len(points))
		for k, p := range points {
			v[k] = field[p.lat][p.lon]
		}
		out[m] = v
	}
	return out, nil
}
