package tpc

import (
	"math"
	"testing"
)

// testCalibration returns a calibration where z equals the drift
// distance, which keeps expected values easy to read.
func testCalibration() Calibration {
	return Calibration{
		DriftVelocityMMPerMicros: 1.648,
		ClockTickMicros:          0.1,
		ZCoord: func(ioGroup, ioChannel uint8, driftDistance float64) float64 {
			return driftDistance
		},
	}
}

func TestHitXYZ(t *testing.T) {
	cal := testCalibration()
	h := Hit{PX: 12.5, PY: -3.0, TS: 1100}

	p := HitXYZ(h, 1000, cal)

	if p.X != 12.5 || p.Y != -3.0 {
		t.Errorf("plane coordinates should pass through, got (%v, %v)", p.X, p.Y)
	}
	// 100 ticks * 1.648 mm/us * 0.1 us/tick
	if math.Abs(p.Z-16.48) > 1e-9 {
		t.Errorf("expected z=16.48, got %v", p.Z)
	}
}

func TestHitXYZIdempotent(t *testing.T) {
	cal := testCalibration()
	h := Hit{PX: 1, PY: 2, TS: 4242, IOGroup: 1, IOChannel: 7}

	first := HitXYZ(h, 4000, cal)
	for i := 0; i < 5; i++ {
		if got := HitXYZ(h, 4000, cal); got != first {
			t.Fatalf("HitXYZ not deterministic: %v then %v", first, got)
		}
	}
}

func TestEventXYZSkipsInvalid(t *testing.T) {
	cal := testCalibration()
	hits := []Hit{{PX: 1, TS: 100}, {PX: 2, TS: 100}}
	valid := []bool{true, false}

	xyz := EventXYZ(hits, valid, 0, cal)

	if xyz[0].X != 1 {
		t.Errorf("valid hit not converted: %+v", xyz[0])
	}
	if (xyz[1] != Point3{}) {
		t.Errorf("invalid hit should stay at zero position, got %+v", xyz[1])
	}
}

func TestCalibrationValidate(t *testing.T) {
	good := testCalibration()
	if err := good.Validate(); err != nil {
		t.Fatalf("valid calibration rejected: %v", err)
	}

	bad := good
	bad.DriftVelocityMMPerMicros = -1
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative drift velocity")
	}

	bad = good
	bad.ClockTickMicros = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero clock tick")
	}

	bad = good
	bad.ZCoord = nil
	if err := bad.Validate(); err == nil {
		t.Error("expected error for nil z-coordinate function")
	}
}
