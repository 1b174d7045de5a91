package models

// Relay is a logical output index, stable regardless of how the relay
// board is physically wired. Drivers translate logical indices to their
// wiring; everything above the driver speaks logical indices only.
type Relay uint8

const (
	RelayBurnerEnable Relay = iota // heating burner at half power
	RelayPowerBoost                // boost either circuit to full power
	RelayWaterMode                 // water-heating burner at half power
	RelayValve                     // diverter valve
	RelayHeatingPump               // heating circulation pump
	RelayWaterPump                 // water circulation pump
	RelaySpare
	RelayAlarm

	RelayCount = 8
)

func (r Relay) String() string {
	switch r {
	case RelayBurnerEnable:
		return "BURNER_ENABLE"
	case RelayPowerBoost:
		return "POWER_BOOST"
	case RelayWaterMode:
		return "WATER_MODE"
	case RelayValve:
		return "VALVE"
	case RelayHeatingPump:
		return "HEATING_PUMP"
	case RelayWaterPump:
		return "WATER_PUMP"
	case RelaySpare:
		return "SPARE"
	case RelayAlarm:
		return "ALARM"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether r is an addressable output.
func (r Relay) Valid() bool {
	return r < RelayCount
}

// IsPump reports whether r drives a motor that needs dwell-time
// protection between state changes.
func (r Relay) IsPump() bool {
	return r == RelayHeatingPump || r == RelayWaterPump
}

// IsFuel reports whether r gates fuel flow. Fuel relays escalate failures
// at a lower threshold and a higher severity than other outputs.
func (r Relay) IsFuel() bool {
	return r == RelayBurnerEnable || r == RelayPowerBoost || r == RelayWaterMode
}

// RelayCommand is a single logical actuation request.
type RelayCommand struct {
	Relay Relay
	On    bool
}

// RelayMask is a bitmask of the eight logical outputs; bit i corresponds
// to Relay(i). Used for the persisted emergency record and telemetry.
type RelayMask uint8

// Set returns the mask with relay r forced to on/off.
func (m RelayMask) Set(r Relay, on bool) RelayMask {
	if !r.Valid() {
		return m
	}
	if on {
		return m | 1<<r
	}
	return m &^ (1 << r)
}

// Get reports the state of relay r within the mask.
func (m RelayMask) Get(r Relay) bool {
	if !r.Valid() {
		return false
	}
	return m&(1<<r) != 0
}

// Active lists the energized relays in index order.
func (m RelayMask) Active() []Relay {
	var out []Relay
	for r := Relay(0); r < RelayCount; r++ {
		if m.Get(r) {
			out = append(out, r)
		}
	}
	return out
}
