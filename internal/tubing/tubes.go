package tubing

import "math"

// Tube is a group of members anchored at an extreme member.
type Tube struct {
	// ID is 1-based, in order of extreme discovery.
	ID int
	// Extreme is the member index anchoring the tube.
	Extreme int
	// Members lists member indices with the extreme first, then in
	// assignment order.
	Members []int
}

// AssignTubes distributes the members covered by pairwise into tubes. dm is
// indexed by member index and radius is the central cluster radius.
//
// Candidates are visited once in descending dm order. Each candidate joins the
// qualifying tube with the smallest perpendicular offset, or becomes the
// extreme of a new tube when none qualifies.
func AssignTubes(dm []float64, pairwise *PairwiseMatrix, radius float64) []Tube {
	order := sortByDistance(dm, pairwise.Members(), true)
	limit := radius * radius

	tubes := make([]Tube, 0)
	for _, member := range order {
		best := -1
		bestOffset := math.Inf(1)
		for t := range tubes {
			extreme := tubes[t].Extreme
			offset, ok := axisOffset(dm[member], dm[extreme], pairwise.Distance(member, extreme))
			if !ok || offset >= limit {
				continue
			}
			if offset < bestOffset {
				best, bestOffset = t, offset
			}
		}

		if best < 0 {
			tubes = append(tubes, Tube{
				ID:      len(tubes) + 1,
				Extreme: member,
				Members: []int{member},
			})
			continue
		}
		tubes[best].Members = append(tubes[best].Members, member)
	}
	return tubes
}

// axisOffset projects a member onto an extreme's axis through the ensemble
// mean. a and b are the member's and the extreme's distances to the mean and
// c the distance between them. It returns the squared perpendicular offset
// dx2 and whether the projection dd is positive.
func axisOffset(a, b, c float64) (float64, bool) {
	if b == 0 {
		return 0, false
	}
	dd := (a*a + b*b - c*c) / (2 * b)
	if dd <= 0 {
		return 0, false
	}
	return a*a - dd*dd, true
}
