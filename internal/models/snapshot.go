package models

import "time"

// SensorSnapshot is a point-in-time copy of every sensor channel together
// with per-channel validity flags and shared freshness timestamps. The
// sensor feed is the only writer; consumers always work on a copy taken
// under the store's lock, so validity and age come from the same moment.
type SensorSnapshot struct {
	BoilerSupply      Temperature
	BoilerReturn      Temperature
	BoilerSupplyValid bool
	BoilerReturnValid bool

	TankTemp      Temperature
	TankTempValid bool

	OutsideTemp      Temperature
	InsideTemp       Temperature
	OutsideTempValid bool
	InsideTempValid  bool

	SystemPressure      Pressure
	SystemPressureValid bool

	// EmergencyStop mirrors the hardwired stop input: true means engaged.
	EmergencyStop bool

	// CommOK reports whether the sensor transport delivered readings
	// recently enough to trust the snapshot at all.
	CommOK bool

	// UpdatedAt covers the temperature channels; pressure has its own
	// timestamp because it arrives on a slower cycle.
	UpdatedAt         time.Time
	PressureUpdatedAt time.Time
}

// Fresh reports whether the temperature channels were updated within
// maxAge of now. A zero UpdatedAt means no reading was ever taken.
func (s SensorSnapshot) Fresh(now time.Time, maxAge time.Duration) bool {
	if s.UpdatedAt.IsZero() {
		return false
	}
	return now.Sub(s.UpdatedAt) <= maxAge
}

// PressureFresh is Fresh for the pressure channel.
func (s SensorSnapshot) PressureFresh(now time.Time, maxAge time.Duration) bool {
	if s.PressureUpdatedAt.IsZero() {
		return false
	}
	return now.Sub(s.PressureUpdatedAt) <= maxAge
}

// ValidSensorCount counts temperature channels that are flagged valid,
// carry a non-sentinel value inside the plausible window for the channel,
// and are fresh. Stale data invalidates every channel at once because the
// freshness timestamp is shared.
func (s SensorSnapshot) ValidSensorCount(now time.Time, maxAge time.Duration) int {
	if !s.Fresh(now, maxAge) {
		return 0
	}
	n := 0
	if s.BoilerSupplyValid && s.BoilerSupply.Valid() && inBoilerRange(s.BoilerSupply) {
		n++
	}
	if s.BoilerReturnValid && s.BoilerReturn.Valid() && inBoilerRange(s.BoilerReturn) {
		n++
	}
	if s.TankTempValid && s.TankTemp.Valid() && inTankRange(s.TankTemp) {
		n++
	}
	if s.OutsideTempValid && s.OutsideTemp.Valid() && inOutsideRange(s.OutsideTemp) {
		n++
	}
	if s.InsideTempValid && s.InsideTemp.Valid() && inInsideRange(s.InsideTemp) {
		n++
	}
	return n
}

// Plausibility windows per channel, in tenths of °C. Readings outside the
// window are treated as sensor faults, not as extreme-but-real values.
const (
	boilerRangeMin  Temperature = -200  // -20.0°C
	boilerRangeMax  Temperature = 1500  // 150.0°C
	tankRangeMin    Temperature = -200  // -20.0°C
	tankRangeMax    Temperature = 1200  // 120.0°C
	outsideRangeMin Temperature = -500  // -50.0°C
	outsideRangeMax Temperature = 600   // 60.0°C
	insideRangeMin  Temperature = -100  // -10.0°C
	insideRangeMax  Temperature = 500   // 50.0°C
)

func inBoilerRange(t Temperature) bool  { return t >= boilerRangeMin && t <= boilerRangeMax }
func inTankRange(t Temperature) bool    { return t >= tankRangeMin && t <= tankRangeMax }
func inOutsideRange(t Temperature) bool { return t >= outsideRangeMin && t <= outsideRangeMax }
func inInsideRange(t Temperature) bool  { return t >= insideRangeMin && t <= insideRangeMax }
