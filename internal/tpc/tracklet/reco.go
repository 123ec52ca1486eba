package tracklet

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/larpix-data/tracklet.report/internal/config"
	"github.com/larpix-data/tracklet.report/internal/monitoring"
	"github.com/larpix-data/tracklet.report/internal/tpc"
)

// Reconstructor runs the full per-batch pipeline: per-event track
// finding on a worker pool, geometry calculation, and emission.
// Construction validates configuration and calibration; after that no
// operation can fail on configuration.
type Reconstructor struct {
	params  FinderParams
	cal     tpc.Calibration
	workers int
}

// NewReconstructor validates the tuning config and calibration and
// returns a ready Reconstructor. Configuration errors surface here and
// are fatal; they are never retried downstream.
func NewReconstructor(cfg *config.TuningConfig, cal tpc.Calibration) (*Reconstructor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("reconstructor: %w", err)
	}
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("reconstructor: %w", err)
	}

	workers := cfg.GetWorkers()
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	return &Reconstructor{
		params:  FinderParamsFromConfig(cfg),
		cal:     cal,
		workers: workers,
	}, nil
}

// BatchResult is the output of one batch: per-hit labels, the dense
// track table with durable ids, and the association tables for storage.
type BatchResult struct {
	Labels [][]int
	Tracks *TrackTable
	Assoc  *Associations
}

// ProcessBatch reconstructs every event in the batch. Events are
// independent, so track finding fans out over the worker pool; each
// worker writes into its own label slot, which keeps the gathered
// result in original event order. Durable ids come from a single range
// reservation against alloc.
func (r *Reconstructor) ProcessBatch(batch *tpc.HitBatch, alloc *IDAllocator) (*BatchResult, error) {
	started := time.Now()
	numEvents := batch.NumEvents()
	labels := make([][]int, numEvents)

	var wg sync.WaitGroup
	sem := make(chan struct{}, r.workers)
	for ev := 0; ev < numEvents; ev++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(ev int) {
			defer wg.Done()
			defer func() { <-sem }()
			hits, valid := batch.Row(ev)
			xyz := tpc.EventXYZ(hits, valid, batch.Events[ev].T0, r.cal)
			labels[ev] = FindTracks(xyz, valid, r.params, ev)
		}(ev)
	}
	wg.Wait()

	tracks := CalcTracks(batch, labels, r.cal)

	assoc, err := Emit(tracks, labels, batch, alloc)
	if err != nil {
		return nil, err
	}

	monitoring.Logf("tracklet: batch of %d events -> %d tracks, %d track-hit refs in %v",
		numEvents, tracks.NumValid(), len(assoc.TrackHits), time.Since(started).Round(time.Millisecond))

	return &BatchResult{Labels: labels, Tracks: tracks, Assoc: assoc}, nil
}
