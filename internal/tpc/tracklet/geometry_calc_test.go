package tracklet

import (
	"math"
	"testing"

	"github.com/larpix-data/tracklet.report/internal/tpc"
)

func singleTrackTable(t *testing.T, hits []tpc.Hit, t0 int64, params FinderParams) (*TrackTable, *Track) {
	t.Helper()
	batch := buildBatch([][]tpc.Hit{hits}, []int64{t0})
	row, valid := batch.Row(0)
	xyz := tpc.EventXYZ(row, valid, t0, testCalibration())
	labels := FindTracks(xyz, valid, params, 0)

	table := CalcTracks(batch, [][]int{labels}, testCalibration())
	track, ok := table.At(0, 0)
	if !ok {
		t.Fatal("expected a valid track in slot (0,0)")
	}
	return table, track
}

func TestCalcTracksStraightLine(t *testing.T) {
	hits := collinearHits(6, 0, 1.0, 1000, 0) // x = 0..5, y = z = 0
	_, track := singleTrackTable(t, hits, 1000, defaultFinderParams())

	if track.NHit != 6 {
		t.Errorf("NHit = %d, want 6", track.NHit)
	}
	if math.Abs(track.Q-6.0) > 1e-9 {
		t.Errorf("Q = %v, want 6.0", track.Q)
	}
	if track.TSStart != 1000 || track.TSEnd != 1000 {
		t.Errorf("time span = [%d, %d], want [1000, 1000]", track.TSStart, track.TSEnd)
	}
	if math.Abs(track.Length-5.0) > 1e-6 {
		t.Errorf("Length = %v, want 5.0", track.Length)
	}

	// Endpoints are the two projected extremes in either order (the
	// axis sign is not canonical), but never the same point.
	gotEnds := [][4]float64{track.Start, track.End}
	xs := []float64{gotEnds[0][0], gotEnds[1][0]}
	if !(xs[0] == 0 && xs[1] == 5 || xs[0] == 5 && xs[1] == 0) {
		t.Errorf("endpoint x values = %v, want {0, 5}", xs)
	}

	// The axis lies in the readout plane: polar angle is pi/2.
	if math.Abs(track.Theta-math.Pi/2) > 1e-6 {
		t.Errorf("Theta = %v, want pi/2", track.Theta)
	}
	// phi = 0 or pi depending on axis sign
	if math.Abs(math.Abs(math.Sin(track.Phi))) > 1e-6 {
		t.Errorf("Phi = %v, want 0 or pi", track.Phi)
	}

	for i, r := range track.Residual {
		if r > 1e-6 {
			t.Errorf("Residual[%d] = %v, want ~0 for clean line", i, r)
		}
	}
}

// The track's end must be a distinct endpoint, not a copy of the start.
func TestTrackEndpointsDistinct(t *testing.T) {
	hits := collinearHits(6, 0, 1.0, 1000, 0)
	_, track := singleTrackTable(t, hits, 1000, defaultFinderParams())

	if track.Start == track.End {
		t.Fatalf("Start and End are identical: %v", track.Start)
	}

	// Length is derivable from the endpoints.
	dx := track.End[0] - track.Start[0]
	dy := track.End[1] - track.Start[1]
	dz := track.End[2] - track.Start[2]
	if d := math.Sqrt(dx*dx + dy*dy + dz*dz); math.Abs(d-track.Length) > 1e-9 {
		t.Errorf("Length = %v but endpoint distance = %v", track.Length, d)
	}
}

func TestCalcTracksZPlaneReference(t *testing.T) {
	// Hits climbing in drift time: z = (TS - t0) with unit calibration,
	// so the track runs through (0, 0, 0) at its first hit.
	hits := make([]tpc.Hit, 6)
	for i := range hits {
		hits[i] = tpc.Hit{
			Index: int64(i),
			PX:    float64(i),
			TS:    1000 + int64(i), // z = i
			Q:     1,
		}
	}
	// The hits step sqrt(2) apart in 3D; widen eps so the density
	// threshold still holds.
	params := defaultFinderParams()
	params.DBSCAN.Eps = 3.0
	_, track := singleTrackTable(t, hits, 1000, params)

	// Line passes through (0,0,0): the z=0 crossing is the origin.
	if math.Abs(track.XP) > 1e-6 || math.Abs(track.YP) > 1e-6 {
		t.Errorf("(XP, YP) = (%v, %v), want (0, 0)", track.XP, track.YP)
	}

	if track.TSStart != 1000 || track.TSEnd != 1005 {
		t.Errorf("time span = [%d, %d], want [1000, 1005]", track.TSStart, track.TSEnd)
	}
	// Start/end 4-vectors carry time since t0.
	times := []float64{track.Start[3], track.End[3]}
	if !(times[0] == 0 && times[1] == 5) {
		t.Errorf("endpoint times = %v, want [0, 5]", times)
	}
}

func TestCalcTracksPlanarAxisFallback(t *testing.T) {
	// All hits at the same drift time: axis has zero z component, so the
	// reference point falls back to the centroid's (x, y).
	hits := collinearHits(6, 0, 1.0, 1000, 0)
	for i := range hits {
		hits[i].PY = 3.0
	}
	_, track := singleTrackTable(t, hits, 1000, defaultFinderParams())

	if math.Abs(track.XP-2.5) > 1e-6 || math.Abs(track.YP-3.0) > 1e-6 {
		t.Errorf("(XP, YP) = (%v, %v), want centroid (2.5, 3)", track.XP, track.YP)
	}
}

func TestCalcTracksSlotTableShape(t *testing.T) {
	// Event 0 yields two tracks, event 1 yields one: the table is padded
	// to two columns with the extra slot invalid.
	ev0 := append(collinearHits(6, 0, 1.0, 1000, 0),
		collinearHits(6, 200, 1.0, 1000, 6)...)
	ev1 := collinearHits(6, 0, 1.0, 2000, 12)

	batch := buildBatch([][]tpc.Hit{ev0, ev1}, []int64{1000, 2000})
	labels := make([][]int, 2)
	for ev := 0; ev < 2; ev++ {
		row, valid := batch.Row(ev)
		xyz := tpc.EventXYZ(row, valid, batch.Events[ev].T0, testCalibration())
		labels[ev] = FindTracks(xyz, valid, defaultFinderParams(), ev)
	}

	table := CalcTracks(batch, labels, testCalibration())

	if table.Cols != 2 {
		t.Fatalf("Cols = %d, want 2", table.Cols)
	}
	if table.NumValid() != 3 {
		t.Errorf("NumValid() = %d, want 3", table.NumValid())
	}
	if _, ok := table.At(1, 1); ok {
		t.Error("slot (1,1) should be invalid padding")
	}
}

func TestCalcTracksNoTracksStillRectangular(t *testing.T) {
	batch := buildBatch([][]tpc.Hit{{}, {}}, []int64{0, 0})
	labels := [][]int{
		make([]int, batch.Capacity),
		make([]int, batch.Capacity),
	}
	for _, row := range labels {
		for i := range row {
			row[i] = Unassigned
		}
	}

	table := CalcTracks(batch, labels, testCalibration())

	if table.Cols != 1 {
		t.Errorf("Cols = %d, want 1 for empty batch", table.Cols)
	}
	if table.NumValid() != 0 {
		t.Errorf("NumValid() = %d, want 0", table.NumValid())
	}
	if len(table.Slots) != 2 {
		t.Errorf("len(Slots) = %d, want 2", len(table.Slots))
	}
}

func TestCalcTracksSingleHitSlotInvalid(t *testing.T) {
	// A label row pointing a single hit at local id 0 must not produce
	// a track record.
	hits := collinearHits(1, 0, 1.0, 1000, 0)
	batch := buildBatch([][]tpc.Hit{hits}, []int64{1000})
	labels := make([]int, batch.Capacity)
	for i := range labels {
		labels[i] = Unassigned
	}
	labels[0] = 0

	table := CalcTracks(batch, [][]int{labels}, testCalibration())
	if table.NumValid() != 0 {
		t.Errorf("single-hit slot should stay invalid, NumValid() = %d", table.NumValid())
	}
}
