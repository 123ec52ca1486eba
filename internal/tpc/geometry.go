package tpc

import (
	"github.com/larpix-data/tracklet.report/internal/units"
)

// HitXYZ converts one hit into a 3D position. The x and y coordinates
// come straight from the pixel plane; z comes from the drift time
// relative to the event reference time, converted to a distance and
// mapped through the channel geometry.
//
// Pure: the same (hit, t0, calibration) triple always yields the same
// position.
func HitXYZ(h Hit, t0 int64, cal Calibration) Point3 {
	driftTicks := h.TS - t0
	driftDist := units.DriftDistanceMM(driftTicks, cal.DriftVelocityMMPerMicros, cal.ClockTickMicros)
	return Point3{
		X: h.PX,
		Y: h.PY,
		Z: cal.ZCoord(h.IOGroup, h.IOChannel, driftDist),
	}
}

// EventXYZ converts a full event row. Invalid entries get the zero
// position; callers must consult the validity row before using them.
func EventXYZ(hits []Hit, valid []bool, t0 int64, cal Calibration) []Point3 {
	xyz := make([]Point3, len(hits))
	for i, h := range hits {
		if !valid[i] {
			continue
		}
		xyz[i] = HitXYZ(h, t0, cal)
	}
	return xyz
}
