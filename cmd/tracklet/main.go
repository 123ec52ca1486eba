// Command tracklet reconstructs straight-line particle tracks from
// stored detector hit batches and persists the results.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/larpix-data/tracklet.report/internal/config"
	"github.com/larpix-data/tracklet.report/internal/db"
	"github.com/larpix-data/tracklet.report/internal/tpc"
	"github.com/larpix-data/tracklet.report/internal/tpc/monitor"
	"github.com/larpix-data/tracklet.report/internal/tpc/tracklet"
)

var (
	configPath = flag.String("config", "", "Path to tuning JSON (defaults to built-in values)")
	dbFile     = flag.String("db", "tracklet_data.db", "Path to the SQLite output database file")
	hitsFile   = flag.String("hits", "", "Path to the JSON hit batch file produced by the event builder")
	batchSize  = flag.Int("batch-size", 64, "Events per reconstruction batch")
	plotsDir   = flag.String("plots", "", "Directory for summary plots (disabled when empty)")
)

// hitJSON and eventJSON mirror the event builder's export format. The
// event builder itself is a separate process; this binary only consumes
// its output.
type hitJSON struct {
	ID        uint32  `json:"id"`
	Index     int64   `json:"index"`
	PX        float64 `json:"px"`
	PY        float64 `json:"py"`
	TS        int64   `json:"ts"`
	Q         float64 `json:"q"`
	IOGroup   uint8   `json:"iogroup"`
	IOChannel uint8   `json:"iochannel"`
}

type eventJSON struct {
	StorageIndex int64     `json:"storage_index"`
	T0           int64     `json:"t0"`
	Hits         []hitJSON `json:"hits"`
}

type batchFileJSON struct {
	Events []eventJSON `json:"events"`
}

func loadEvents(path string) ([]eventJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hits file: %w", err)
	}
	var parsed batchFileJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse hits file: %w", err)
	}
	return parsed.Events, nil
}

// buildBatch packs a slice of events into the padded arena layout the
// reconstruction operates on.
func buildBatch(events []eventJSON) *tpc.HitBatch {
	capacity := 1
	for _, ev := range events {
		if len(ev.Hits) > capacity {
			capacity = len(ev.Hits)
		}
	}

	refs := make([]tpc.EventRef, len(events))
	for i, ev := range events {
		refs[i] = tpc.EventRef{StorageIndex: ev.StorageIndex, T0: ev.T0}
	}

	batch := tpc.NewHitBatch(refs, capacity)
	for i, ev := range events {
		for j, h := range ev.Hits {
			batch.SetHit(i, j, tpc.Hit{
				ID:        h.ID,
				Index:     h.Index,
				PX:        h.PX,
				PY:        h.PY,
				TS:        h.TS,
				Q:         h.Q,
				IOGroup:   h.IOGroup,
				IOChannel: h.IOChannel,
			})
		}
	}
	return batch
}

func main() {
	flag.Parse()

	if *hitsFile == "" {
		log.Fatal("missing required -hits flag")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	// Stand-in for the calibration collaborator: the two anodes face
	// each other across the drift volume, so io group selects the drift
	// direction.
	cal := tpc.Calibration{
		DriftVelocityMMPerMicros: cfg.GetDriftVelocityMMPerMicros(),
		ClockTickMicros:          cfg.GetClockTickMicros(),
		ZCoord: func(ioGroup, ioChannel uint8, driftDistance float64) float64 {
			if ioGroup == 2 {
				return -driftDistance
			}
			return driftDistance
		},
	}

	reconstructor, err := tracklet.NewReconstructor(cfg, cal)
	if err != nil {
		log.Fatalf("Failed to configure reconstruction: %v", err)
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	store := db.NewTrackStore(database)
	runID, err := store.CreateRun(cfg)
	if err != nil {
		log.Fatalf("Failed to create run: %v", err)
	}

	events, err := loadEvents(*hitsFile)
	if err != nil {
		log.Fatalf("Failed to load events: %v", err)
	}

	plotter := monitor.NewTrackPlotter()
	if *plotsDir != "" {
		if err := plotter.Start(*plotsDir); err != nil {
			log.Fatalf("Failed to start plotter: %v", err)
		}
	}

	var alloc tracklet.IDAllocator
	total := 0
	for batchIndex := 0; batchIndex*(*batchSize) < len(events); batchIndex++ {
		lo := batchIndex * (*batchSize)
		hi := lo + *batchSize
		if hi > len(events) {
			hi = len(events)
		}

		result, err := reconstructor.ProcessBatch(buildBatch(events[lo:hi]), &alloc)
		if err != nil {
			log.Fatalf("Batch %d failed: %v", batchIndex, err)
		}

		if err := store.SaveBatch(runID, int64(batchIndex), result); err != nil {
			log.Fatalf("Failed to persist batch %d: %v", batchIndex, err)
		}

		plotter.Record(result.Tracks)
		total += result.Tracks.NumValid()
	}

	if *plotsDir != "" {
		if err := plotter.WritePlots(); err != nil {
			log.Fatalf("Failed to write plots: %v", err)
		}
	}

	log.Printf("run %s: reconstructed %d tracks from %d events into %s", runID, total, len(events), *dbFile)
}
