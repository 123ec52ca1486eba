package tracklet

import (
	"errors"
	"sync/atomic"

	"github.com/larpix-data/tracklet.report/internal/tpc"
)

// ErrGeometryNotRun reports an ordering-contract violation: emission
// was requested before geometry calculation produced a track table for
// the batch.
var ErrGeometryNotRun = errors.New("tracklet: emit called before geometry calculation")

// IDAllocator hands out durable track identifiers. Reserve is the sole
// serialization point of a batch: a single atomic range reservation,
// never per-row locking. The zero value starts allocating at 0.
type IDAllocator struct {
	next atomic.Int64
}

// Reserve atomically claims n consecutive identifiers and returns the
// first.
func (a *IDAllocator) Reserve(n int) int64 {
	return a.next.Add(int64(n)) - int64(n)
}

// Next returns the next identifier that would be handed out.
func (a *IDAllocator) Next() int64 { return a.next.Load() }

// TrackHitRef associates a durable track id with a hit storage index.
type TrackHitRef struct {
	TrackID  int64
	HitIndex int64
}

// EventTrackRef associates an event storage index with a durable track
// id.
type EventTrackRef struct {
	EventIndex int64
	TrackID    int64
}

// Associations holds the two reference tables handed to the storage
// collaborator.
type Associations struct {
	TrackHits   []TrackHitRef
	EventTracks []EventTrackRef
}

// Emit assigns durable identifiers to every valid track slot, row-major
// over (event, local id), and builds the association tables. The table
// is mutated in place: valid slots get their ID field set. Labels must
// be the same label rows that produced the table.
//
// Returns ErrGeometryNotRun if the table is missing, which is a
// programming error, not a data condition.
func Emit(table *TrackTable, labels [][]int, batch *tpc.HitBatch, alloc *IDAllocator) (*Associations, error) {
	if table == nil || table.Slots == nil {
		return nil, ErrGeometryNotRun
	}

	start := alloc.Reserve(table.NumValid())

	// Durable ids are contiguous and ordered row-major over the slot
	// table.
	id := start
	for i := range table.Slots {
		if !table.Valid[i] {
			continue
		}
		table.Slots[i].ID = id
		id++
	}

	assoc := &Associations{}
	for ev := 0; ev < table.NumEvents; ev++ {
		hits, _ := batch.Row(ev)

		for i, l := range labels[ev] {
			if l < 0 {
				continue
			}
			track, valid := table.At(ev, l)
			if !valid {
				continue
			}
			assoc.TrackHits = append(assoc.TrackHits, TrackHitRef{
				TrackID:  track.ID,
				HitIndex: hits[i].Index,
			})
		}

		for local := 0; local < table.Cols; local++ {
			track, valid := table.At(ev, local)
			if !valid {
				continue
			}
			assoc.EventTracks = append(assoc.EventTracks, EventTrackRef{
				EventIndex: batch.Events[ev].StorageIndex,
				TrackID:    track.ID,
			})
		}
	}

	return assoc, nil
}
