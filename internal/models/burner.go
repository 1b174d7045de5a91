package models

import "time"

// BurnerState enumerates the burner sequencing states. Exactly one
// authoritative instance of the state machine owns the current value;
// transitions are the only place relay intent is produced.
type BurnerState uint8

const (
	StateIdle BurnerState = iota
	StatePrePurge
	StateIgnition
	StateRunningLow
	StateRunningHigh
	StateModeSwitching
	StatePostPurge
	StateLockout
	StateError
)

// String returns the canonical state name used in logs, events and the API.
func (s BurnerState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePrePurge:
		return "PRE_PURGE"
	case StateIgnition:
		return "IGNITION"
	case StateRunningLow:
		return "RUNNING_LOW"
	case StateRunningHigh:
		return "RUNNING_HIGH"
	case StateModeSwitching:
		return "MODE_SWITCHING"
	case StatePostPurge:
		return "POST_PURGE"
	case StateLockout:
		return "LOCKOUT"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// IsRunning reports whether the burner is producing heat in state s.
func (s BurnerState) IsRunning() bool {
	return s == StateRunningLow || s == StateRunningHigh
}

// IsActive reports whether fuel may be flowing or about to flow:
// ignition, either running state, or a mode switch in progress.
func (s BurnerState) IsActive() bool {
	return s == StateIgnition || s.IsRunning() || s == StateModeSwitching
}

// BurnerMode selects which circuit the burner serves.
type BurnerMode uint8

const (
	ModeOff BurnerMode = iota
	ModeHeating
	ModeWater
)

func (m BurnerMode) String() string {
	switch m {
	case ModeOff:
		return "OFF"
	case ModeHeating:
		return "HEATING"
	case ModeWater:
		return "WATER"
	default:
		return "UNKNOWN"
	}
}

// PowerLevel is the discrete burner power request. Auto lets the
// regulator pick based on PID modulation.
type PowerLevel uint8

const (
	PowerOff PowerLevel = iota
	PowerHalf
	PowerFull
	PowerAuto
)

func (p PowerLevel) String() string {
	switch p {
	case PowerOff:
		return "OFF"
	case PowerHalf:
		return "HALF"
	case PowerFull:
		return "FULL"
	case PowerAuto:
		return "AUTO"
	default:
		return "UNKNOWN"
	}
}

// HeatDemand is the atomic request unit consumed by the state machine.
// Target, mode and power are always written and read together so the
// machine can never observe a stale target with a fresh enable flag.
type HeatDemand struct {
	Active    bool
	Mode      BurnerMode
	Target    Temperature
	HighPower bool
	UpdatedAt time.Time
}

// ControlOutput is the regulator's published per-cycle decision: on/off
// intent, the discrete power level, the modulation percentage, and
// whether the content changed since the previous cycle. Changed false
// means the cycle only re-sent what the actuation path already had.
type ControlOutput struct {
	BurnerOn   bool
	Power      PowerLevel
	Modulation int // 0-100
	Changed    bool
}
