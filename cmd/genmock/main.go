// Command genmock generates synthetic ensemble snapshot fixtures and,
// optionally, the tubing results the service produces for them. It runs the
// real transformer so the results fixture matches pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock/snapshots_240426.json \
//	  -results-out data/mock/tubing_240426.json \
//	  -seed 20240426 -members 20 -snapshots 8
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/ensemble-tubing/internal/domain"
	"github.com/couchcryptid/ensemble-tubing/internal/mockdata"
	"github.com/couchcryptid/ensemble-tubing/internal/pipeline"
	"github.com/couchcryptid/ensemble-tubing/internal/tubing"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	defaults := mockdata.DefaultConfig()

	out := flag.String("out", "", "output path for the snapshot fixture")
	resultsOut := flag.String("results-out", "", "optional output path for the tubing results fixture")
	seed := flag.Uint64("seed", defaults.Seed, "random seed")
	members := flag.Int("members", defaults.Members, "members per snapshot")
	snapshots := flag.Int("snapshots", defaults.Snapshots, "number of lead times")
	fraction := flag.Float64("fraction", tubing.DefaultThresholdFraction, "central cluster threshold fraction")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	cfg := defaults
	cfg.Seed = *seed
	cfg.Members = *members
	cfg.Snapshots = *snapshots

	// Set a fixed clock for reproducible ProcessedAt timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	records, err := mockdata.Generate(cfg)
	if err != nil {
		return fmt.Errorf("generate snapshots: %w", err)
	}
	log.Printf("generated %d snapshots of %d members on a %dx%d grid",
		len(records), cfg.Members, len(cfg.Lat), len(cfg.Lon))

	if err := writeJSON(*out, records); err != nil {
		return fmt.Errorf("writing snapshot fixture: %w", err)
	}
	log.Printf("wrote snapshot fixture: %s", *out)

	transformer := pipeline.NewTransformer(tubing.Options{ThresholdFraction: *fraction}, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	events := make([]domain.TubingEvent, 0, len(records))
	for _, rec := range records {
		snap, err := domain.NewSnapshot(rec)
		if err != nil {
			return fmt.Errorf("snapshot f%03d: %w", rec.DTime, err)
		}
		event, err := transformer.ComputeSnapshot(snap)
		if err != nil {
			return fmt.Errorf("tubing f%03d: %w", rec.DTime, err)
		}
		events = append(events, event)
	}

	if *resultsOut != "" {
		if err := writeJSON(*resultsOut, events); err != nil {
			return fmt.Errorf("writing results fixture: %w", err)
		}
		log.Printf("wrote results fixture: %s", *resultsOut)
	}

	printStats(events)
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(events []domain.TubingEvent) {
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Snapshots: %d\n", len(events))

	tubeHist := map[int]int{}
	for _, e := range events {
		tubeHist[len(e.Tubes)]++
		fmt.Printf("  f%03d  id=%s  central=%d  tubes=%d  outliers=%d  radius=%.2f  total_variance=%.2f\n",
			e.DTime, e.ID, len(e.CentralCluster), len(e.Tubes), len(e.OutlierMembers), e.Radius, e.TotalVariance)
		for _, tube := range e.Tubes {
			fmt.Printf("        tube %d: extreme=%d (dm %.2f) members=%v\n",
				tube.ID, tube.Extreme, tube.ExtremeDistance, tube.Members)
		}
	}

	counts := make([]int, 0, len(tubeHist))
	for k := range tubeHist {
		counts = append(counts, k)
	}
	sort.Ints(counts)
	fmt.Print("Tube count histogram:")
	for _, k := range counts {
		fmt.Printf(" %d=%d", k, tubeHist[k])
	}
	fmt.Println()
}
