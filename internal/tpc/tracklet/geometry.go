package tracklet

import (
	"math"

	"github.com/larpix-data/tracklet.report/internal/tpc"
)

// Track is the summary geometry of one accepted tracklet.
//
// Start and End are 4-vectors: the endpoint position (mm) with the
// endpoint's hit time relative to the event reference time (ticks)
// appended. The axis sign, and therefore which projected extreme
// becomes Start, is whatever the decomposition returned.
type Track struct {
	ID int64 // durable identifier, assigned by the emitter

	Theta float64 // polar angle of the fitted axis
	Phi   float64 // azimuthal angle of the fitted axis
	XP    float64 // x of the fitted line's z=0 crossing
	YP    float64 // y of the fitted line's z=0 crossing

	NHit    int
	Q       float64
	TSStart int64
	TSEnd   int64

	Residual [3]float64 // per-axis mean absolute deviation from the line
	Length   float64    // Euclidean distance between Start and End

	Start [4]float64
	End   [4]float64
}

// TrackTable is the dense per-batch track slot table: one row per
// event, one column per candidate local track id, padded to the maximum
// local id count seen anywhere in the batch. Slots with fewer than two
// member hits stay invalid. The rectangular shape with a parallel
// validity bitmap preserves the batched-write contract to storage.
type TrackTable struct {
	NumEvents int
	Cols      int
	Slots     []Track // len = NumEvents * Cols, row-major
	Valid     []bool  // parallel to Slots
}

// At returns a pointer to the slot for (event, local id) and its
// validity.
func (t *TrackTable) At(event, local int) (*Track, bool) {
	idx := event*t.Cols + local
	return &t.Slots[idx], t.Valid[idx]
}

// NumValid returns the number of valid slots.
func (t *TrackTable) NumValid() int {
	n := 0
	for _, v := range t.Valid {
		if v {
			n++
		}
	}
	return n
}

// CalcTracks computes one geometry record per (event, local id) pair
// with at least two member hits. labels holds one per-hit label row per
// event, as produced by FindTracks. The slot table is sized by the
// largest local id across the whole batch; a batch with no accepted
// tracks still yields a single all-invalid column so downstream writes
// stay rectangular.
func CalcTracks(batch *tpc.HitBatch, labels [][]int, cal tpc.Calibration) *TrackTable {
	numEvents := batch.NumEvents()

	cols := 1
	for _, row := range labels {
		if m := MaxLabel(row) + 1; m > cols {
			cols = m
		}
	}

	table := &TrackTable{
		NumEvents: numEvents,
		Cols:      cols,
		Slots:     make([]Track, numEvents*cols),
		Valid:     make([]bool, numEvents*cols),
	}

	for ev := 0; ev < numEvents; ev++ {
		hits, valid := batch.Row(ev)
		t0 := batch.Events[ev].T0
		xyz := tpc.EventXYZ(hits, valid, t0, cal)

		for local := 0; local < cols; local++ {
			var members []int
			for i, l := range labels[ev] {
				if l == local && valid[i] {
					members = append(members, i)
				}
			}
			if len(members) < 2 {
				continue
			}

			pts := make([]tpc.Point3, len(members))
			for k, i := range members {
				pts[k] = xyz[i]
			}

			centroid, axis, ok := tpc.PrincipalAxis(pts)
			if !ok {
				continue
			}

			rMin, rMax := projectedLimits(centroid, axis, pts)
			residual := trackResidual(centroid, axis, pts)
			xp, yp := zPlaneCrossing(centroid, axis)

			track, _ := table.At(ev, local)
			track.ID = -1
			track.Theta = math.Atan2(math.Hypot(axis.X, axis.Y), axis.Z)
			track.Phi = math.Atan2(axis.Y, axis.X)
			track.XP = xp
			track.YP = yp
			track.NHit = len(members)

			var q float64
			tsStart, tsEnd := hits[members[0]].TS, hits[members[0]].TS
			for _, i := range members {
				q += hits[i].Q
				if hits[i].TS < tsStart {
					tsStart = hits[i].TS
				}
				if hits[i].TS > tsEnd {
					tsEnd = hits[i].TS
				}
			}
			track.Q = q
			track.TSStart = tsStart
			track.TSEnd = tsEnd

			track.Residual = residual
			track.Length = rMax.Sub(rMin).Norm()
			track.Start = [4]float64{rMin.X, rMin.Y, rMin.Z, float64(tsStart - t0)}
			track.End = [4]float64{rMax.X, rMax.Y, rMax.Z, float64(tsEnd - t0)}

			table.Valid[ev*cols+local] = true
		}
	}

	return table
}

// projectedLimits projects every point onto the axis and returns the
// min- and max-projection points, clipped componentwise to the bounding
// box of the members. Clipping keeps a long axis from extrapolating an
// endpoint outside the charge that produced it.
func projectedLimits(centroid, axis tpc.Point3, pts []tpc.Point3) (rMin, rMax tpc.Point3) {
	sMin, sMax := math.Inf(1), math.Inf(-1)
	boxMin := pts[0]
	boxMax := pts[0]
	for _, p := range pts {
		s := p.Sub(centroid).Dot(axis)
		if s < sMin {
			sMin = s
		}
		if s > sMax {
			sMax = s
		}
		boxMin.X = math.Min(boxMin.X, p.X)
		boxMin.Y = math.Min(boxMin.Y, p.Y)
		boxMin.Z = math.Min(boxMin.Z, p.Z)
		boxMax.X = math.Max(boxMax.X, p.X)
		boxMax.Y = math.Max(boxMax.Y, p.Y)
		boxMax.Z = math.Max(boxMax.Z, p.Z)
	}

	rMin = clipToBox(centroid.Add(axis.Scale(sMin)), boxMin, boxMax)
	rMax = clipToBox(centroid.Add(axis.Scale(sMax)), boxMin, boxMax)
	return rMin, rMax
}

func clipToBox(p, boxMin, boxMax tpc.Point3) tpc.Point3 {
	return tpc.Point3{
		X: math.Min(math.Max(p.X, boxMin.X), boxMax.X),
		Y: math.Min(math.Max(p.Y, boxMin.Y), boxMax.Y),
		Z: math.Min(math.Max(p.Z, boxMin.Z), boxMax.Z),
	}
}

// trackResidual returns the per-axis mean absolute deviation of the
// members from their projections onto the fitted line.
func trackResidual(centroid, axis tpc.Point3, pts []tpc.Point3) [3]float64 {
	var sum [3]float64
	for _, p := range pts {
		s := p.Sub(centroid).Dot(axis)
		proj := centroid.Add(axis.Scale(s))
		sum[0] += math.Abs(p.X - proj.X)
		sum[1] += math.Abs(p.Y - proj.Y)
		sum[2] += math.Abs(p.Z - proj.Z)
	}
	n := float64(len(pts))
	return [3]float64{sum[0] / n, sum[1] / n, sum[2] / n}
}

// zPlaneCrossing returns the (x, y) of the fitted line's intersection
// with the z=0 plane, falling back to the centroid for axes parallel to
// the plane.
func zPlaneCrossing(centroid, axis tpc.Point3) (xp, yp float64) {
	if axis.Z == 0 {
		return centroid.X, centroid.Y
	}
	s := -centroid.Z / axis.Z
	p := centroid.Add(axis.Scale(s))
	return p.X, p.Y
}
