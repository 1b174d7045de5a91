package models

// ValidationOutcome is the closed result set of a pre-operation safety
// check. Exactly one outcome is produced per evaluation; every value other
// than SafeToOperate blocks operation equally, the ordering only matters
// for which check fires first and for log readability.
type ValidationOutcome uint8

const (
	SafeToOperate ValidationOutcome = iota
	EmergencyStopActive
	InsufficientSensors
	TemperatureExceeded
	RuntimeExceeded
	PressureExceeded
	SensorFailure
	HardwareInterlockOpen
	ThermalShockRisk
)

func (v ValidationOutcome) String() string {
	switch v {
	case SafeToOperate:
		return "SAFE_TO_OPERATE"
	case EmergencyStopActive:
		return "EMERGENCY_STOP_ACTIVE"
	case InsufficientSensors:
		return "INSUFFICIENT_SENSORS"
	case TemperatureExceeded:
		return "TEMPERATURE_EXCEEDED"
	case RuntimeExceeded:
		return "RUNTIME_EXCEEDED"
	case PressureExceeded:
		return "PRESSURE_EXCEEDED"
	case SensorFailure:
		return "SENSOR_FAILURE"
	case HardwareInterlockOpen:
		return "HARDWARE_INTERLOCK_OPEN"
	case ThermalShockRisk:
		return "THERMAL_SHOCK_RISK"
	default:
		return "UNKNOWN"
	}
}

// Message returns the operator-facing description for the outcome.
func (v ValidationOutcome) Message() string {
	switch v {
	case SafeToOperate:
		return "safe to operate"
	case EmergencyStopActive:
		return "emergency stop is engaged"
	case InsufficientSensors:
		return "too few valid sensors for safe operation"
	case TemperatureExceeded:
		return "temperature limit exceeded"
	case RuntimeExceeded:
		return "continuous or daily runtime limit exceeded"
	case PressureExceeded:
		return "system pressure outside operating band"
	case SensorFailure:
		return "required sensor reading missing or failed"
	case HardwareInterlockOpen:
		return "hardware interlock circuit open"
	case ThermalShockRisk:
		return "supply/return differential too large"
	default:
		return "unknown validation outcome"
	}
}

// Safe reports whether the outcome permits starting or continuing
// combustion.
func (v ValidationOutcome) Safe() bool {
	return v == SafeToOperate
}
