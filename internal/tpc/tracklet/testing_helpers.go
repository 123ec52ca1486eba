package tracklet

import (
	"github.com/larpix-data/tracklet.report/internal/tpc"
)

// Helpers shared by the package tests.

// testCalibration places z at the raw drift distance so expected
// positions stay easy to read in tests.
func testCalibration() tpc.Calibration {
	return tpc.Calibration{
		DriftVelocityMMPerMicros: 1.0,
		ClockTickMicros:          1.0,
		ZCoord: func(ioGroup, ioChannel uint8, driftDistance float64) float64 {
			return driftDistance
		},
	}
}

// buildBatch packs per-event hit rows into a padded HitBatch. Row
// capacity is the longest row plus two padding slots so the masked
// layout is actually exercised.
func buildBatch(rows [][]tpc.Hit, t0s []int64) *tpc.HitBatch {
	capacity := 2
	for _, row := range rows {
		if len(row)+2 > capacity {
			capacity = len(row) + 2
		}
	}

	events := make([]tpc.EventRef, len(rows))
	for i := range rows {
		events[i] = tpc.EventRef{StorageIndex: int64(i), T0: t0s[i]}
	}

	batch := tpc.NewHitBatch(events, capacity)
	for i, row := range rows {
		for j, h := range row {
			batch.SetHit(i, j, h)
		}
	}
	return batch
}

// collinearHits returns n hits along the x axis of the pixel plane,
// spaced step mm apart, all at the event reference time (z = 0).
func collinearHits(n int, startX, step float64, t0 int64, firstIndex int64) []tpc.Hit {
	hits := make([]tpc.Hit, n)
	for i := range hits {
		hits[i] = tpc.Hit{
			ID:    uint32(firstIndex) + uint32(i),
			Index: firstIndex + int64(i),
			PX:    startX + float64(i)*step,
			TS:    t0,
			Q:     1.0,
		}
	}
	return hits
}

// defaultFinderParams mirrors the production defaults used throughout
// the scenario tests.
func defaultFinderParams() FinderParams {
	return FinderParams{
		DBSCAN:    tpc.DBSCANParams{Eps: 2.5, MinSamples: 5},
		RANSAC:    tpc.RANSACParams{MinSamples: 2, ResidualThreshold: 8, MaxTrials: 100},
		MaxRounds: 100,
		Seed:      1,
	}
}
