package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/larpix-data/tracklet.report/internal/config"
	"github.com/larpix-data/tracklet.report/internal/tpc/tracklet"
)

// ErrBatchExists reports an attempt to persist a batch whose output
// rows already exist. Re-processing a batch is rejected here rather
// than silently duplicated.
var ErrBatchExists = errors.New("db: batch output already exists")

// TrackStore persists reconstruction output: the durable track table
// and the two association tables, grouped under a run.
type TrackStore struct {
	db *DB
}

// NewTrackStore creates a TrackStore backed by the given database.
func NewTrackStore(db *DB) *TrackStore {
	return &TrackStore{db: db}
}

// CreateRun registers a new reconstruction run and records the tuning
// parameters it ran with, so stored tracks stay interpretable after the
// config file changes. Returns the new run id.
func (s *TrackStore) CreateRun(cfg *config.TuningConfig) (string, error) {
	runID := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO reco_runs (
			run_id, dbscan_eps, dbscan_min_samples,
			ransac_min_samples, ransac_residual_threshold,
			ransac_max_trials, ransac_seed
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID,
		cfg.GetDBSCANEps(),
		cfg.GetDBSCANMinSamples(),
		cfg.GetRANSACMinSamples(),
		cfg.GetRANSACResidualThreshold(),
		cfg.GetRANSACMaxTrials(),
		cfg.GetRANSACSeed(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return runID, nil
}

// SaveBatch writes one batch's tracks and associations in a single
// transaction. A batch that was already written for this run returns
// ErrBatchExists and leaves the database untouched.
func (s *TrackStore) SaveBatch(runID string, batchIndex int64, result *tracklet.BatchResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRow(
		`SELECT COUNT(*) FROM reco_batches WHERE run_id = ? AND batch_index = ?`,
		runID, batchIndex,
	).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to check for existing batch: %w", err)
	}
	if existing > 0 {
		return fmt.Errorf("run %s batch %d: %w", runID, batchIndex, ErrBatchExists)
	}

	table := result.Tracks
	if _, err := tx.Exec(
		`INSERT INTO reco_batches (run_id, batch_index, n_events, n_tracks) VALUES (?, ?, ?, ?)`,
		runID, batchIndex, table.NumEvents, table.NumValid(),
	); err != nil {
		return fmt.Errorf("failed to insert batch row: %w", err)
	}

	insertTrack, err := tx.Prepare(`
		INSERT INTO tracklets (
			run_id, track_id, batch_index,
			theta, phi, xp, yp, nhit, q, ts_start, ts_end,
			residual_x, residual_y, residual_z, length,
			start_x, start_y, start_z, start_t,
			end_x, end_y, end_z, end_t
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare track insert: %w", err)
	}
	defer insertTrack.Close()

	for i := range table.Slots {
		if !table.Valid[i] {
			continue
		}
		t := &table.Slots[i]
		if _, err := insertTrack.Exec(
			runID, t.ID, batchIndex,
			t.Theta, t.Phi, t.XP, t.YP, t.NHit, t.Q, t.TSStart, t.TSEnd,
			t.Residual[0], t.Residual[1], t.Residual[2], t.Length,
			t.Start[0], t.Start[1], t.Start[2], t.Start[3],
			t.End[0], t.End[1], t.End[2], t.End[3],
		); err != nil {
			return fmt.Errorf("failed to insert track %d: %w", t.ID, err)
		}
	}

	for _, ref := range result.Assoc.TrackHits {
		if _, err := tx.Exec(
			`INSERT INTO tracklet_hits (run_id, track_id, hit_index) VALUES (?, ?, ?)`,
			runID, ref.TrackID, ref.HitIndex,
		); err != nil {
			return fmt.Errorf("failed to insert track-hit ref: %w", err)
		}
	}

	for _, ref := range result.Assoc.EventTracks {
		if _, err := tx.Exec(
			`INSERT INTO event_tracklets (run_id, event_index, track_id) VALUES (?, ?, ?)`,
			runID, ref.EventIndex, ref.TrackID,
		); err != nil {
			return fmt.Errorf("failed to insert event-track ref: %w", err)
		}
	}

	return tx.Commit()
}

// GetTracks returns all persisted tracks for a run ordered by durable
// id.
func (s *TrackStore) GetTracks(runID string) ([]tracklet.Track, error) {
	rows, err := s.db.Query(`
		SELECT track_id, theta, phi, xp, yp, nhit, q, ts_start, ts_end,
		       residual_x, residual_y, residual_z, length,
		       start_x, start_y, start_z, start_t,
		       end_x, end_y, end_z, end_t
		FROM tracklets WHERE run_id = ? ORDER BY track_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []tracklet.Track
	for rows.Next() {
		var t tracklet.Track
		if err := rows.Scan(
			&t.ID, &t.Theta, &t.Phi, &t.XP, &t.YP, &t.NHit, &t.Q, &t.TSStart, &t.TSEnd,
			&t.Residual[0], &t.Residual[1], &t.Residual[2], &t.Length,
			&t.Start[0], &t.Start[1], &t.Start[2], &t.Start[3],
			&t.End[0], &t.End[1], &t.End[2], &t.End[3],
		); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// GetTrackHits returns the storage indices of the hits belonging to one
// track.
func (s *TrackStore) GetTrackHits(runID string, trackID int64) ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT hit_index FROM tracklet_hits WHERE run_id = ? AND track_id = ? ORDER BY hit_index`,
		runID, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query track hits: %w", err)
	}
	defer rows.Close()

	var indices []int64
	for rows.Next() {
		var idx int64
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("failed to scan hit index: %w", err)
		}
		indices = append(indices, idx)
	}
	return indices, rows.Err()
}

// GetEventTracks returns the durable track ids reconstructed for one
// event.
func (s *TrackStore) GetEventTracks(runID string, eventIndex int64) ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT track_id FROM event_tracklets WHERE run_id = ? AND event_index = ? ORDER BY track_id`,
		runID, eventIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to query event tracks: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan track id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountTracks returns the number of persisted tracks for a run.
func (s *TrackStore) CountTracks(runID string) (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tracklets WHERE run_id = ?`, runID).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return n, nil
}
