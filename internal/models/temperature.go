package models

import (
	"fmt"
	"math"
)

// Temperature is a fixed-point temperature in tenths of a degree Celsius.
// The representable range is -3276.8°C to +3276.7°C with 0.1°C precision.
// Control-loop math stays in this integer domain on purpose: conversions to
// float happen only at the API/telemetry boundary.
type Temperature int16

// Sentinel values outside the normal math domain. Every arithmetic helper
// treats them as absorbing: any operation involving a sentinel yields a
// sentinel, and comparisons on sentinels are always false.
const (
	TempInvalid Temperature = math.MinInt16     // -32768: reading failed or never taken
	TempUnknown Temperature = math.MinInt16 + 1 // -32767: channel not populated yet
)

// Float conversion bounds in °C.
const (
	tempMaxCelsius = 3276.7
	tempMinCelsius = -3276.8
	tempScale      = 10.0
)

// TempFromCelsius converts a float °C value to fixed-point tenths.
// NaN and infinities map to TempInvalid; out-of-range values saturate.
func TempFromCelsius(c float64) Temperature {
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return TempInvalid
	}
	if c > tempMaxCelsius {
		return math.MaxInt16
	}
	if c < tempMinCelsius {
		return math.MinInt16
	}
	scaled := c * tempScale
	if scaled >= 0 {
		scaled += 0.5
	} else {
		scaled -= 0.5
	}
	return Temperature(int16(scaled))
}

// Celsius converts back to float °C. TempInvalid maps to NaN.
func (t Temperature) Celsius() float64 {
	if t == TempInvalid {
		return math.NaN()
	}
	return float64(t) / tempScale
}

// TempFromWhole builds a Temperature from whole degrees.
func TempFromWhole(degrees int) Temperature {
	return Temperature(degrees * 10)
}

// Valid reports whether t carries a usable reading (neither sentinel).
func (t Temperature) Valid() bool {
	return t != TempInvalid && t != TempUnknown
}

// Add returns a+b with sentinel absorption and saturation instead of wrap.
func (t Temperature) Add(other Temperature) Temperature {
	if t == TempInvalid || other == TempInvalid {
		return TempInvalid
	}
	return clampTemp(int32(t) + int32(other))
}

// Sub returns t-other with sentinel absorption and saturation instead of wrap.
func (t Temperature) Sub(other Temperature) Temperature {
	if t == TempInvalid || other == TempInvalid {
		return TempInvalid
	}
	return clampTemp(int32(t) - int32(other))
}

// Abs returns the magnitude of t. The minimum value has no int16 negation,
// so it clamps to the maximum instead of overflowing.
func (t Temperature) Abs() Temperature {
	if t == TempInvalid {
		return TempInvalid
	}
	if t == math.MinInt16 {
		return math.MaxInt16
	}
	if t < 0 {
		return -t
	}
	return t
}

// Greater reports a > b; false whenever either side is a sentinel.
func (t Temperature) Greater(other Temperature) bool {
	return t.Valid() && other.Valid() && t > other
}

// GreaterOrEqual reports a >= b; false whenever either side is a sentinel.
func (t Temperature) GreaterOrEqual(other Temperature) bool {
	return t.Valid() && other.Valid() && t >= other
}

// Less reports a < b; false whenever either side is a sentinel.
func (t Temperature) Less(other Temperature) bool {
	return t.Valid() && other.Valid() && t < other
}

// LessOrEqual reports a <= b; false whenever either side is a sentinel.
func (t Temperature) LessOrEqual(other Temperature) bool {
	return t.Valid() && other.Valid() && t <= other
}

// String formats the temperature as "D.d" in °C, or "N/A" for TempInvalid.
func (t Temperature) String() string {
	if t == TempInvalid {
		return "N/A"
	}
	whole := int(t) / 10
	frac := int(t) % 10
	if frac < 0 {
		frac = -frac
	}
	if t < 0 && whole == 0 {
		return fmt.Sprintf("-0.%d", frac)
	}
	return fmt.Sprintf("%d.%d", whole, frac)
}

func clampTemp(v int32) Temperature {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return Temperature(v)
}
