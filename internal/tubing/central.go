package tubing

import (
	"cmp"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// CentralCluster is the set of members closest to the ensemble mean.
type CentralCluster struct {
	// Members lists member indices in admission order (ascending dm).
	Members []int
	// Radius is dm of the last admitted member, or 0 for a degenerate spread.
	Radius float64
	// TotalVariance is the population variance of dm over the filtered set.
	TotalVariance float64
}

// DetectCentralCluster grows the central cluster over the filtered members.
// dm is indexed by member index; filtered selects which members take part.
func DetectCentralCluster(dm []float64, filtered []int, fraction float64, mode Mode) (CentralCluster, error) {
	if fraction <= 0 || fraction >= 1 {
		return CentralCluster{}, fmt.Errorf("%w: got %g", ErrInvalidThreshold, fraction)
	}
	if len(filtered) < MinMembers {
		return CentralCluster{}, fmt.Errorf("%w: %d members after filtering, need %d", ErrInsufficientMembers, len(filtered), MinMembers)
	}

	switch mode {
	case SpreadDependent:
		return spreadDependentCluster(dm, filtered, fraction), nil
	case SeasonDependent:
		return CentralCluster{}, fmt.Errorf("%w: %s central cluster", ErrNotImplemented, mode)
	default:
		return CentralCluster{}, fmt.Errorf("unknown tubing mode %d", int(mode))
	}
}

// spreadDependentCluster admits members in ascending dm order, starting from
// the two nearest, until the variance of the admitted dm reaches
// fraction × total variance. The farthest filtered member is never admitted.
func spreadDependentCluster(dm []float64, filtered []int, fraction float64) CentralCluster {
	order := sortByDistance(dm, filtered, false)
	values := make([]float64, len(order))
	for k, m := range order {
		values[k] = dm[m]
	}

	total := stat.PopVariance(values, nil)
	if total == 0 {
		return CentralCluster{Members: order, Radius: 0, TotalVariance: 0}
	}

	threshold := fraction * total
	n := 2
	for n < len(order)-1 && stat.PopVariance(values[:n], nil) < threshold {
		n++
	}

	return CentralCluster{
		Members:       order[:n:n],
		Radius:        values[n-1],
		TotalVariance: total,
	}
}

// sortByDistance orders member indices by dm. Ties keep the lower member index
// first in both directions.
func sortByDistance(dm []float64, members []int, descending bool) []int {
	out := slices.Clone(members)
	slices.Sort(out)
	slices.SortStableFunc(out, func(a, b int) int {
		if descending {
			return cmp.Compare(dm[b], dm[a])
		}
		return cmp.Compare(dm[a], dm[b])
	})
	return out
}
