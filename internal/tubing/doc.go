// Package tubing partitions an ensemble forecast snapshot into a central
// cluster and a set of divergent tubes.
//
// # Algorithm
//
// The computation runs in three stages, each a pure function of its inputs:
//
//	ComputeMeanDistance   dm[i] = ||member[i] - ensemble mean||₂
//	FilterOutliers        drop dm[i] <= mean(dm) - 3·std(dm)
//	DetectCentralCluster  grow by ascending dm until the cluster variance
//	                      reaches fraction × total variance; radius = last dm
//	ComputePairwise       ||member[i] - member[j]||₂ over non-central members
//	AssignTubes           descending dm; join the tube whose extreme axis the
//	                      member projects onto within the radius
//
// The membership test uses the triangle (member, extreme, ensemble mean).
// With a = dm(member), b = dm(extreme) and c = d(member, extreme), the law of
// cosines gives the scalar projection of the member onto the extreme's axis
// and the squared perpendicular offset from it:
//
//	dd  = (a² + b² − c²) / (2b)
//	dx2 = a² − dd²
//
// A member joins the tube when dd > 0 and dx2 < radius². When several tubes
// qualify the member joins only the one with the smallest dx2, so every
// filtered member ends up either in the central cluster or in exactly one tube.
//
// # Index spaces
//
// Member indices are positions in the input ensemble and are the only indices
// exposed by this package. The pairwise matrix is stored densely over the
// non-central candidates; [PairwiseMatrix] keeps the translation table between
// the two spaces so callers never see candidate positions.
//
// # Ordering
//
// Ties in dm are broken by the lower member index, in both the ascending pass
// of the central cluster and the descending pass of the tube assignment. Tube
// ids are 1-based and follow the order in which extremes are discovered.
package tubing
