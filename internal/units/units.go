// Package units provides shared detector unit constants and conversions
package units

// Default calibration constants for the charge readout and LAr drift.
// Distances are millimeters, times are microseconds unless noted.
const (
	// DefaultClockTickMicros is the charge readout clock period (10 MHz clock).
	DefaultClockTickMicros = 0.1
	// DefaultDriftVelocityMMPerMicros is the electron drift velocity at
	// nominal field (500 V/cm in LAr).
	DefaultDriftVelocityMMPerMicros = 1.648
)

// TicksToMicros converts a readout clock tick count to microseconds.
func TicksToMicros(ticks int64, tickMicros float64) float64 {
	return float64(ticks) * tickMicros
}

// DriftDistanceMM converts a drift time in clock ticks to a drift
// distance in millimeters. This is the product used everywhere the
// detector converts time into depth; keeping it in one place keeps the
// tick scale and drift velocity from being applied twice.
func DriftDistanceMM(driftTicks int64, driftVelocity, tickMicros float64) float64 {
	return float64(driftTicks) * driftVelocity * tickMicros
}

// MicrosToTicks converts microseconds back to clock ticks, truncating
// toward zero.
func MicrosToTicks(micros float64, tickMicros float64) int64 {
	if tickMicros == 0 {
		return 0
	}
	return int64(micros / tickMicros)
}
