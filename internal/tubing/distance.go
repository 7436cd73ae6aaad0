package tubing

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MinMembers is the smallest ensemble the algorithm accepts: two members to
// seed the central cluster variance and at least one tube candidate.
const MinMembers = 3

// outlierSigma is the number of standard deviations below mean(dm) at which a
// member is considered a spurious near-zero distance.
const outlierSigma = 3

// ComputeMeanDistance returns, for each flattened member, the L2 distance to
// the elementwise ensemble mean. The result is indexed by member index.
func ComputeMeanDistance(members [][]float64) ([]float64, error) {
	if len(members) < MinMembers {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientMembers, len(members), MinMembers)
	}
	n := len(members[0])
	for i, m := range members {
		if len(m) != n {
			return nil, fmt.Errorf("%w: member %d has %d points, member 0 has %d", ErrGridMismatch, i, len(m), n)
		}
	}

	mean := make([]float64, n)
	for _, m := range members {
		floats.Add(mean, m)
	}
	count := float64(len(members))
	for k := range mean {
		mean[k] /= count
	}

	dm := make([]float64, len(members))
	for i, m := range members {
		dm[i] = floats.Distance(m, mean, 2)
	}
	return dm, nil
}

// FilterOutliers returns the member indices whose dm lies strictly above
// mean(dm) - 3·std(dm), in ascending member order. A zero standard deviation
// keeps every member.
func FilterOutliers(dm []float64) []int {
	kept := make([]int, 0, len(dm))
	if len(dm) == 0 {
		return kept
	}

	mean, std := stat.PopMeanStdDev(dm, nil)
	if std == 0 {
		for i := range dm {
			kept = append(kept, i)
		}
		return kept
	}

	cutoff := mean - outlierSigma*std
	for i, v := range dm {
		if v > cutoff {
			kept = append(kept, i)
		}
	}
	return kept
}

// PairwiseMatrix holds L2 distances among a subset of members. Storage is
// dense over candidate positions; all accessors take member indices.
type PairwiseMatrix struct {
	members  []int       // candidate position -> member index
	position map[int]int // member index -> candidate position
	dist     *mat.SymDense
}

// ComputePairwise computes d(i, j) for every pair of the given member indices.
func ComputePairwise(members [][]float64, candidates []int) (*PairwiseMatrix, error) {
	p := &PairwiseMatrix{
		members:  append([]int(nil), candidates...),
		position: make(map[int]int, len(candidates)),
	}
	for pos, m := range candidates {
		if m < 0 || m >= len(members) {
			return nil, fmt.Errorf("candidate member %d out of range [0, %d)", m, len(members))
		}
		if _, dup := p.position[m]; dup {
			return nil, fmt.Errorf("candidate member %d listed twice", m)
		}
		p.position[m] = pos
	}
	if len(candidates) == 0 {
		return p, nil
	}

	n := len(members[candidates[0]])
	for _, m := range candidates[1:] {
		if len(members[m]) != n {
			return nil, fmt.Errorf("%w: member %d has %d points, member %d has %d",
				ErrGridMismatch, m, len(members[m]), candidates[0], n)
		}
	}

	p.dist = mat.NewSymDense(len(candidates), nil)
	for a := range candidates {
		for b := a + 1; b < len(candidates); b++ {
			p.dist.SetSym(a, b, floats.Distance(members[candidates[a]], members[candidates[b]], 2))
		}
	}
	return p, nil
}

// Members returns the member indices covered by the matrix, in the order they
// were supplied.
func (p *PairwiseMatrix) Members() []int {
	return append([]int(nil), p.members...)
}

// Len is the number of members covered.
func (p *PairwiseMatrix) Len() int { return len(p.members) }

// Distance returns d(a, b) for two member indices covered by the matrix.
// It panics if either index is not covered.
func (p *PairwiseMatrix) Distance(a, b int) float64 {
	pa, ok := p.position[a]
	if !ok {
		panic(fmt.Sprintf("tubing: member %d not in pairwise matrix", a))
	}
	pb, ok := p.position[b]
	if !ok {
		panic(fmt.Sprintf("tubing: member %d not in pairwise matrix", b))
	}
	return p.dist.At(pa, pb)
}
