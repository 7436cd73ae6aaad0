// Command validate recomputes the tubing partition for every snapshot in a
// fixture and checks the structural properties of the result: every retained
// member lands in exactly one group, central members lie within the radius,
// tube members project onto their extreme's axis, and repeated runs agree.
// When a results fixture is given, recomputed events must match it.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -snapshots data/mock/snapshots_240426.json \
//	  -results data/mock/tubing_240426.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"time"

	"github.com/couchcryptid/ensemble-tubing/internal/domain"
	"github.com/couchcryptid/ensemble-tubing/internal/mockdata"
	"github.com/couchcryptid/ensemble-tubing/internal/pipeline"
	"github.com/couchcryptid/ensemble-tubing/internal/tubing"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// computed is one snapshot with its recomputed partition.
type computed struct {
	key     string
	snap    domain.Snapshot
	members [][]float64 // flattened over the extent
	result  tubing.Result
}

func main() {
	snapshotsPath := flag.String("snapshots", "", "path to the snapshot fixture")
	resultsPath := flag.String("results", "", "optional path to the tubing results fixture")
	fraction := flag.Float64("fraction", tubing.DefaultThresholdFraction, "central cluster threshold fraction")
	flag.Parse()

	if *snapshotsPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*snapshotsPath, *resultsPath, tubing.Options{ThresholdFraction: *fraction}); code != 0 {
		os.Exit(code)
	}
}

func run(snapshotsPath, resultsPath string, opts tubing.Options) int {
	// Set a fixed clock matching genmock for result reproducibility.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	fmt.Println("=== Ensemble Tubing Validation ===")
	fmt.Println()

	records, err := loadJSON[domain.RawSnapshot](snapshotsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load snapshots: %v\n", err)
		return 1
	}

	var expected []domain.TubingEvent
	if resultsPath != "" {
		expected, err = loadJSON[domain.TubingEvent](resultsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load results: %v\n", err)
			return 1
		}
	}

	opts = opts.WithDefaults()
	integrity, snaps := validateSnapshots(records, opts)
	phases := []*phase{
		integrity,
		validatePartition(snaps),
		validateGeometry(snaps),
		validateDeterminism(snaps, opts),
	}
	if resultsPath != "" {
		phases = append(phases, validateResults(snaps, expected, opts))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Snapshots: %d in fixture, %d computed, %d expected results\n",
		len(records), len(snaps), len(expected))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ── Phase 1: Snapshot Integrity ──

func validateSnapshots(records []domain.RawSnapshot, opts tubing.Options) (*phase, []computed) {
	p := &phase{name: "Phase 1: Snapshot Integrity"}

	seen := map[string]bool{}
	out := make([]computed, 0, len(records))
	for i, rec := range records {
		key := mockdata.Key(rec)
		if seen[key] {
			p.errorf("snapshot %d: duplicate key %s", i, key)
		}
		seen[key] = true

		snap, err := domain.NewSnapshot(rec)
		if err != nil {
			p.errorf("snapshot %d (%s): %v", i, key, err)
			continue
		}

		extent := opts.Extent
		if snap.Extent != nil {
			extent = snap.Extent
		}
		members, err := snap.Ensemble.Flatten(extent)
		if err != nil {
			p.errorf("snapshot %d (%s): flatten: %v", i, key, err)
			continue
		}

		run := opts
		run.Extent = extent
		res, err := tubing.Compute(snap.Ensemble, run)
		if err != nil {
			p.errorf("snapshot %d (%s): tubing: %v", i, key, err)
			continue
		}
		out = append(out, computed{key: key, snap: snap, members: members, result: res})
	}
	return p, out
}

// ── Phase 2: Partition ──
// Every retained member belongs to exactly one of the central cluster or a
// tube; outliers belong to neither.

func validatePartition(snaps []computed) *phase {
	p := &phase{name: "Phase 2: Partition"}

	for _, c := range snaps {
		res := c.result
		owner := make(map[int]string, len(res.Distances))
		claim := func(m int, group string) {
			if prev, ok := owner[m]; ok {
				p.errorf("%s: member %d in both %s and %s", c.key, m, prev, group)
				return
			}
			owner[m] = group
		}

		for _, m := range res.CentralCluster {
			claim(m, "central cluster")
		}
		for i, tube := range res.Tubes {
			if tube.ID != i+1 {
				p.errorf("%s: tube at position %d has id %d", c.key, i, tube.ID)
			}
			if len(tube.Members) == 0 || tube.Members[0] != tube.Extreme {
				p.errorf("%s: tube %d does not start with its extreme", c.key, tube.ID)
			}
			for _, m := range tube.Members {
				claim(m, fmt.Sprintf("tube %d", tube.ID))
			}
		}

		for _, m := range res.Filtered {
			if _, ok := owner[m]; !ok {
				p.errorf("%s: retained member %d is unassigned", c.key, m)
			}
		}
		for _, m := range res.Outliers() {
			if group, ok := owner[m]; ok {
				p.errorf("%s: outlier %d assigned to %s", c.key, m, group)
			}
		}
		if len(res.CentralCluster) < 2 {
			p.errorf("%s: central cluster has %d members", c.key, len(res.CentralCluster))
		}
	}
	return p
}

// ── Phase 3: Geometry ──

func validateGeometry(snaps []computed) *phase {
	p := &phase{name: "Phase 3: Radius and Tube Geometry"}

	for _, c := range snaps {
		res := c.result
		dm := res.Distances
		if res.TotalVariance == 0 {
			// Degenerate spread: everything is central with radius 0.
			if len(res.Tubes) != 0 || res.Radius != 0 {
				p.errorf("%s: zero spread but radius %.4f and %d tubes", c.key, res.Radius, len(res.Tubes))
			}
			continue
		}

		for _, m := range res.CentralCluster {
			if dm[m] > res.Radius {
				p.errorf("%s: central member %d has dm %.4f beyond radius %.4f", c.key, m, dm[m], res.Radius)
			}
		}
		if n := len(res.CentralCluster); n > 0 && dm[res.CentralCluster[n-1]] != res.Radius {
			p.errorf("%s: radius %.4f is not the last admitted distance", c.key, res.Radius)
		}

		for _, tube := range res.Tubes {
			extreme := tube.Extreme
			for _, m := range tube.Members[1:] {
				if dm[m] > dm[extreme] {
					p.errorf("%s: tube %d member %d is farther than its extreme", c.key, tube.ID, m)
				}
				d := pointDistance(c.members[m], c.members[extreme])
				dd := (dm[m]*dm[m] + dm[extreme]*dm[extreme] - d*d) / (2 * dm[extreme])
				dx2 := dm[m]*dm[m] - dd*dd
				if dd <= 0 || dx2 >= res.Radius*res.Radius+1e-9 {
					p.errorf("%s: tube %d member %d off axis (dd=%.4f dx2=%.4f r2=%.4f)",
						c.key, tube.ID, m, dd, dx2, res.Radius*res.Radius)
				}
			}
		}
	}
	return p
}

func pointDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ── Phase 4: Determinism ──

func validateDeterminism(snaps []computed, opts tubing.Options) *phase {
	p := &phase{name: "Phase 4: Determinism"}

	for _, c := range snaps {
		run := opts
		if c.snap.Extent != nil {
			run.Extent = c.snap.Extent
		}
		again, err := tubing.Compute(c.snap.Ensemble, run)
		if err != nil {
			p.errorf("%s: second run failed: %v", c.key, err)
			continue
		}
		if diff := cmp.Diff(c.result, again); diff != "" {
			p.errorf("%s: second run differs (-first +second):\n%s", c.key, diff)
		}
	}
	return p
}

// ── Phase 5: Result Parity ──

func validateResults(snaps []computed, expected []domain.TubingEvent, opts tubing.Options) *phase {
	p := &phase{name: "Phase 5: Result Parity (fixture)"}

	if len(expected) != len(snaps) {
		p.errorf("result count: expected %d, got %d", len(expected), len(snaps))
	}

	byID := make(map[string]domain.TubingEvent, len(expected))
	for _, e := range expected {
		byID[e.ID] = e
	}

	transformer := pipeline.NewTransformer(opts, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, c := range snaps {
		got, err := transformer.ComputeSnapshot(c.snap)
		if err != nil {
			p.errorf("%s: %v", c.key, err)
			continue
		}
		want, ok := byID[got.ID]
		if !ok {
			p.errorf("%s: id %s not in results fixture", c.key, got.ID)
			continue
		}
		diff := cmp.Diff(want, got,
			cmpopts.EquateApprox(0, 1e-9),
			cmpopts.EquateEmpty(),
			cmpopts.EquateApproxTime(time.Second),
		)
		if diff != "" {
			p.errorf("%s: result mismatch (-fixture +recomputed):\n%s", c.key, diff)
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if !slices.ContainsFunc(snaps, func(c computed) bool { return byID[id].DTime == c.snap.DTime }) {
			p.errorf("result %s has no snapshot at f%03d", id, byID[id].DTime)
		}
	}
	return p
}
