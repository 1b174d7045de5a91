package models

import (
	"fmt"
	"math"
)

// Pressure is a fixed-point pressure in hundredths of a bar.
// Range: -327.68 to +327.67 bar with 0.01 bar precision.
type Pressure int16

// Sentinel values, absorbing in arithmetic like the Temperature sentinels.
const (
	PressureInvalid Pressure = math.MinInt16
	PressureUnknown Pressure = math.MinInt16 + 1
)

// Safety constants for a residential boiler circuit, in hundredths of a bar.
const (
	PressureMinSafe Pressure = 50  // 0.50 bar
	PressureMaxSafe Pressure = 250 // 2.50 bar
	PressureNormal  Pressure = 150 // 1.50 bar
)

const (
	pressureMaxBar = 327.67
	pressureMinBar = -327.68
	pressureScale  = 100.0
)

// PressureFromBar converts a float bar value to fixed-point hundredths.
// NaN and infinities map to PressureInvalid; out-of-range values saturate.
func PressureFromBar(bar float64) Pressure {
	if math.IsNaN(bar) || math.IsInf(bar, 0) {
		return PressureInvalid
	}
	if bar > pressureMaxBar {
		return math.MaxInt16
	}
	if bar < pressureMinBar {
		return math.MinInt16
	}
	scaled := bar * pressureScale
	if scaled >= 0 {
		scaled += 0.5
	} else {
		scaled -= 0.5
	}
	return Pressure(int16(scaled))
}

// Bar converts back to float bar. PressureInvalid maps to NaN.
func (p Pressure) Bar() float64 {
	if p == PressureInvalid {
		return math.NaN()
	}
	return float64(p) / pressureScale
}

// Valid reports whether p carries a usable reading.
func (p Pressure) Valid() bool {
	return p != PressureInvalid && p != PressureUnknown
}

// InSafeRange reports whether p lies inside the static safe band.
// Sentinels are never in range.
func (p Pressure) InSafeRange() bool {
	return p.Valid() && p >= PressureMinSafe && p <= PressureMaxSafe
}

// Add returns a+b with sentinel absorption and saturation.
func (p Pressure) Add(other Pressure) Pressure {
	if p == PressureInvalid || other == PressureInvalid {
		return PressureInvalid
	}
	return clampPressure(int32(p) + int32(other))
}

// Sub returns p-other with sentinel absorption and saturation.
func (p Pressure) Sub(other Pressure) Pressure {
	if p == PressureInvalid || other == PressureInvalid {
		return PressureInvalid
	}
	return clampPressure(int32(p) - int32(other))
}

// String formats the pressure as "B.bb" in bar, or "N/A" for PressureInvalid.
func (p Pressure) String() string {
	if p == PressureInvalid {
		return "N/A"
	}
	whole := int(p) / 100
	frac := int(p) % 100
	if frac < 0 {
		frac = -frac
	}
	if p < 0 && whole == 0 {
		return fmt.Sprintf("-0.%02d", frac)
	}
	return fmt.Sprintf("%d.%02d", whole, frac)
}

func clampPressure(v int32) Pressure {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return Pressure(v)
}
