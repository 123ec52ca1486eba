package tpc

import (
	"fmt"
)

// Hit represents a single charge deposition read out from one pixel
// channel. Hits are produced by the upstream event builder and are
// immutable here; the reconstruction only derives positions and labels
// from them.
type Hit struct {
	ID        uint32  // hit identifier within the run
	Index     int64   // storage index of the hit in the hits dataset
	PX, PY    float64 // pixel position on the readout plane (mm)
	TS        int64   // absolute timestamp in readout clock ticks
	Q         float64 // collected charge (arbitrary calibrated units)
	IOGroup   uint8   // readout group, input to the z-coordinate lookup
	IOChannel uint8   // readout channel, input to the z-coordinate lookup
}

// Point3 is a position in detector coordinates (mm).
type Point3 struct {
	X, Y, Z float64
}

// EventRef identifies one detector-triggered event within a batch.
type EventRef struct {
	StorageIndex int64 // index of the event in the events dataset
	T0           int64 // event reference time in clock ticks
}

// HitBatch is a fixed-capacity batch of events. Hit rows are stored in
// a single contiguous arena with a parallel validity bitmap; row i
// occupies Hits[i*Capacity : (i+1)*Capacity]. Padding entries carry a
// false Valid flag and must never be read.
type HitBatch struct {
	Events   []EventRef
	Capacity int    // hits per event row, including padding
	Hits     []Hit  // len = len(Events) * Capacity
	Valid    []bool // parallel to Hits
}

// NewHitBatch allocates a batch for n events of the given row capacity.
func NewHitBatch(events []EventRef, capacity int) *HitBatch {
	return &HitBatch{
		Events:   events,
		Capacity: capacity,
		Hits:     make([]Hit, len(events)*capacity),
		Valid:    make([]bool, len(events)*capacity),
	}
}

// NumEvents returns the number of events in the batch.
func (b *HitBatch) NumEvents() int { return len(b.Events) }

// Row returns the hit row and validity row for event i.
func (b *HitBatch) Row(i int) ([]Hit, []bool) {
	lo, hi := i*b.Capacity, (i+1)*b.Capacity
	return b.Hits[lo:hi], b.Valid[lo:hi]
}

// SetHit places a hit at column j of event row i and marks it valid.
func (b *HitBatch) SetHit(i, j int, h Hit) {
	b.Hits[i*b.Capacity+j] = h
	b.Valid[i*b.Capacity+j] = true
}

// CountValid returns the number of valid hits in event row i.
func (b *HitBatch) CountValid(i int) int {
	_, valid := b.Row(i)
	n := 0
	for _, v := range valid {
		if v {
			n++
		}
	}
	return n
}

// ZCoordFunc maps readout channel identifiers plus a drift distance (mm)
// to the spatial z coordinate (mm). Supplied by the calibration
// collaborator; must be a pure function.
type ZCoordFunc func(ioGroup, ioChannel uint8, driftDistance float64) float64

// Calibration bundles the constants and channel mapping needed to place
// hits in 3D.
type Calibration struct {
	DriftVelocityMMPerMicros float64
	ClockTickMicros          float64
	ZCoord                   ZCoordFunc
}

// Validate reports a configuration error if the calibration is
// malformed. Callers must check this at setup; geometry conversion
// assumes a valid calibration.
func (c Calibration) Validate() error {
	if c.DriftVelocityMMPerMicros <= 0 {
		return fmt.Errorf("calibration: drift velocity must be positive, got %f", c.DriftVelocityMMPerMicros)
	}
	if c.ClockTickMicros <= 0 {
		return fmt.Errorf("calibration: clock tick must be positive, got %f", c.ClockTickMicros)
	}
	if c.ZCoord == nil {
		return fmt.Errorf("calibration: z-coordinate function is required")
	}
	return nil
}
