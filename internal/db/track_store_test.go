package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/larpix-data/tracklet.report/internal/config"
	"github.com/larpix-data/tracklet.report/internal/tpc"
	"github.com/larpix-data/tracklet.report/internal/tpc/tracklet"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(filepath.Join(t.TempDir(), "tracklets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func testBatchResult(t *testing.T) *tracklet.BatchResult {
	t.Helper()

	cal := tpc.Calibration{
		DriftVelocityMMPerMicros: 1.0,
		ClockTickMicros:          1.0,
		ZCoord: func(ioGroup, ioChannel uint8, driftDistance float64) float64 {
			return driftDistance
		},
	}
	r, err := tracklet.NewReconstructor(config.EmptyTuningConfig(), cal)
	require.NoError(t, err)

	events := []tpc.EventRef{{StorageIndex: 0, T0: 1000}, {StorageIndex: 1, T0: 2000}}
	batch := tpc.NewHitBatch(events, 12)
	for ev := 0; ev < 2; ev++ {
		for j := 0; j < 8; j++ {
			batch.SetHit(ev, j, tpc.Hit{
				Index: int64(ev*8 + j),
				PX:    float64(j),
				TS:    events[ev].T0,
				Q:     1,
			})
		}
	}

	var alloc tracklet.IDAllocator
	result, err := r.ProcessBatch(batch, &alloc)
	require.NoError(t, err)
	require.Equal(t, 2, result.Tracks.NumValid())
	return result
}

func TestMigrateUpAndDown(t *testing.T) {
	database := openTestDB(t)

	version, dirty, err := database.MigrateVersion()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)

	require.NoError(t, database.MigrateDown())
	var count int
	err = database.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='tracklets'`,
	).Scan(&count)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestSaveAndQueryBatch(t *testing.T) {
	database := openTestDB(t)
	store := NewTrackStore(database)
	result := testBatchResult(t)

	runID, err := store.CreateRun(config.EmptyTuningConfig())
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	require.NoError(t, store.SaveBatch(runID, 0, result))

	tracks, err := store.GetTracks(runID)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	require.Equal(t, int64(0), tracks[0].ID)
	require.Equal(t, int64(1), tracks[1].ID)
	require.Equal(t, 8, tracks[0].NHit)
	require.InDelta(t, 7.0, tracks[0].Length, 1e-9)

	hits, err := store.GetTrackHits(runID, tracks[0].ID)
	require.NoError(t, err)
	require.Len(t, hits, 8)

	ids, err := store.GetEventTracks(runID, 1)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, ids)

	n, err := store.CountTracks(runID)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestSaveBatchRejectsReprocessing(t *testing.T) {
	database := openTestDB(t)
	store := NewTrackStore(database)
	result := testBatchResult(t)

	runID, err := store.CreateRun(config.EmptyTuningConfig())
	require.NoError(t, err)
	require.NoError(t, store.SaveBatch(runID, 7, result))

	err = store.SaveBatch(runID, 7, result)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrBatchExists))

	// The rejected write must not have duplicated anything.
	n, err := store.CountTracks(runID)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestRunParametersPersisted(t *testing.T) {
	database := openTestDB(t)
	store := NewTrackStore(database)

	runID, err := store.CreateRun(config.EmptyTuningConfig())
	require.NoError(t, err)

	var eps float64
	var seed int64
	err = database.QueryRow(
		`SELECT dbscan_eps, ransac_seed FROM reco_runs WHERE run_id = ?`, runID,
	).Scan(&eps, &seed)
	require.NoError(t, err)
	require.Equal(t, 2.5, eps)
	require.Equal(t, int64(1), seed)
}
