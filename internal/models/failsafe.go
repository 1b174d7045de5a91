package models

// FailsafeLevel is the ordered system-wide severity ladder. Within one
// incident the level never silently decreases once at Critical or above;
// downgrades happen only through the coordinator's explicit, gated
// recovery path.
type FailsafeLevel uint8

const (
	LevelNormal FailsafeLevel = iota
	LevelWarning
	LevelDegraded
	LevelCritical
	LevelEmergency
	LevelShutdown
)

func (l FailsafeLevel) String() string {
	switch l {
	case LevelNormal:
		return "NORMAL"
	case LevelWarning:
		return "WARNING"
	case LevelDegraded:
		return "DEGRADED"
	case LevelCritical:
		return "CRITICAL"
	case LevelEmergency:
		return "EMERGENCY"
	case LevelShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// Severe reports whether l is at or above Critical, the band in which the
// coordinator enforces monotonicity and recovery gating.
func (l FailsafeLevel) Severe() bool {
	return l >= LevelCritical
}

// FailsafeReason is the closed set of incident root causes. The recovery
// gate checks the reason-specific condition before allowing a downgrade.
type FailsafeReason uint8

const (
	ReasonNone FailsafeReason = iota
	ReasonSensorFailure
	ReasonOvertemperature
	ReasonOverpressure
	ReasonEmergencyStop
	ReasonRelayFailure
	ReasonLockTimeout
	ReasonCommLoss
	ReasonLowMemory
	ReasonInterlockFault
	ReasonIgnitionLockout
	ReasonOperatorRequest
)

func (r FailsafeReason) String() string {
	switch r {
	case ReasonNone:
		return "NONE"
	case ReasonSensorFailure:
		return "SENSOR_FAILURE"
	case ReasonOvertemperature:
		return "OVERTEMPERATURE"
	case ReasonOverpressure:
		return "OVERPRESSURE"
	case ReasonEmergencyStop:
		return "EMERGENCY_STOP"
	case ReasonRelayFailure:
		return "RELAY_FAILURE"
	case ReasonLockTimeout:
		return "LOCK_TIMEOUT"
	case ReasonCommLoss:
		return "COMM_LOSS"
	case ReasonLowMemory:
		return "LOW_MEMORY"
	case ReasonInterlockFault:
		return "INTERLOCK_FAULT"
	case ReasonIgnitionLockout:
		return "IGNITION_LOCKOUT"
	case ReasonOperatorRequest:
		return "OPERATOR_REQUEST"
	default:
		return "UNKNOWN"
	}
}

// Subsystem tags the components that register failsafe handlers, so the
// coordinator can dispatch escalations exhaustively instead of walking an
// opaque callback list.
type Subsystem uint8

const (
	SubsystemBurner Subsystem = iota
	SubsystemPumps
	SubsystemRelays
	SubsystemTelemetry
	SubsystemRegulator
)

func (s Subsystem) String() string {
	switch s {
	case SubsystemBurner:
		return "BURNER"
	case SubsystemPumps:
		return "PUMPS"
	case SubsystemRelays:
		return "RELAYS"
	case SubsystemTelemetry:
		return "TELEMETRY"
	case SubsystemRegulator:
		return "REGULATOR"
	default:
		return "UNKNOWN"
	}
}
