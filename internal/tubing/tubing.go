package tubing

import (
	"fmt"
	"slices"
)

// DefaultThresholdFraction is the share of the total dm variance at which the
// central cluster stops growing.
const DefaultThresholdFraction = 0.5

// Options configures a tubing computation. The zero value uses
// DefaultThresholdFraction, SpreadDependent and the whole grid.
type Options struct {
	ThresholdFraction float64
	Mode              Mode
	Extent            *Extent
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{ThresholdFraction: DefaultThresholdFraction, Mode: SpreadDependent}
}

// WithDefaults fills unset fields with their defaults.
func (o Options) WithDefaults() Options {
	if o.ThresholdFraction == 0 {
		o.ThresholdFraction = DefaultThresholdFraction
	}
	return o
}

// Validate reports configuration errors without touching any data.
func (o Options) Validate() error {
	o = o.WithDefaults()
	if o.ThresholdFraction <= 0 || o.ThresholdFraction >= 1 {
		return fmt.Errorf("%w: got %g", ErrInvalidThreshold, o.ThresholdFraction)
	}
	switch o.Mode {
	case SpreadDependent, SeasonDependent:
	default:
		return fmt.Errorf("unknown tubing mode %d", int(o.Mode))
	}
	if o.Extent != nil {
		return o.Extent.Validate()
	}
	return nil
}

// Result is the partition of one ensemble snapshot. All indices are member
// indices into the input ensemble.
type Result struct {
	// Tubes are ordered by ID.
	Tubes []Tube
	// CentralCluster lists members in admission order (ascending dm).
	CentralCluster []int
	TotalVariance  float64
	Radius         float64

	// Distances holds dm for every input member, including outliers.
	Distances []float64
	// Filtered lists the members kept by the outlier filter, ascending.
	Filtered []int
}

// TubeMap returns tube id -> member list.
func (r Result) TubeMap() map[int][]int {
	m := make(map[int][]int, len(r.Tubes))
	for _, t := range r.Tubes {
		m[t.ID] = slices.Clone(t.Members)
	}
	return m
}

// Outliers lists the members removed by the outlier filter, ascending.
func (r Result) Outliers() []int {
	var out []int
	for i := range r.Distances {
		if _, found := slices.BinarySearch(r.Filtered, i); !found {
			out = append(out, i)
		}
	}
	return out
}

// Compute runs the full tubing pipeline on one ensemble snapshot. It either
// returns a complete Result or an error and a zero Result.
func Compute(ens Ensemble, opts Options) (Result, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	if opts.Mode == SeasonDependent {
		return Result{}, fmt.Errorf("%w: %s central cluster", ErrNotImplemented, opts.Mode)
	}

	members, err := ens.Flatten(opts.Extent)
	if err != nil {
		return Result{}, err
	}

	dm, err := ComputeMeanDistance(members)
	if err != nil {
		return Result{}, err
	}

	filtered := FilterOutliers(dm)
	if len(filtered) < MinMembers {
		return Result{}, fmt.Errorf("%w: %d of %d members left after outlier filtering", ErrInsufficientMembers, len(filtered), len(dm))
	}

	cluster, err := DetectCentralCluster(dm, filtered, opts.ThresholdFraction, opts.Mode)
	if err != nil {
		return Result{}, err
	}

	candidates := excluding(filtered, cluster.Members)
	pairwise, err := ComputePairwise(members, candidates)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Tubes:          AssignTubes(dm, pairwise, cluster.Radius),
		CentralCluster: cluster.Members,
		TotalVariance:  cluster.TotalVariance,
		Radius:         cluster.Radius,
		Distances:      dm,
		Filtered:       filtered,
	}, nil
}

// excluding returns the members of all that are not in drop, preserving the
// order of all.
func excluding(all, drop []int) []int {
	skip := make(map[int]struct{}, len(drop))
	for _, m := range drop {
		skip[m] = struct{}{}
	}
	out := make([]int, 0, len(all)-len(drop))
	for _, m := range all {
		if _, ok := skip[m]; !ok {
			out = append(out, m)
		}
	}
	return out
}
