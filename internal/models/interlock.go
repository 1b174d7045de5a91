package models

import (
	"strings"
	"time"
)

// InterlockStatus holds one boolean per continuously-monitored condition
// plus the time of the check that produced it. A status is built fresh on
// every full check and replaced wholesale; it is never mutated field by
// field after publication.
type InterlockStatus struct {
	TemperatureValid   bool
	TemperatureInRange bool
	NoEmergencyStop    bool
	CommunicationOK    bool
	NoSystemErrors     bool
	MinimumSensorsOK   bool
	PressureInRange    bool
	CheckedAt          time.Time
}

// AllPassed is the aggregate predicate: the AND of every condition.
func (s InterlockStatus) AllPassed() bool {
	return s.TemperatureValid &&
		s.TemperatureInRange &&
		s.NoEmergencyStop &&
		s.CommunicationOK &&
		s.NoSystemErrors &&
		s.MinimumSensorsOK &&
		s.PressureInRange
}

// FailureReason lists the failed conditions in a fixed order, or "none".
func (s InterlockStatus) FailureReason() string {
	var failed []string
	if !s.NoEmergencyStop {
		failed = append(failed, "emergency stop")
	}
	if !s.TemperatureValid {
		failed = append(failed, "temperature invalid")
	}
	if !s.TemperatureInRange {
		failed = append(failed, "temperature out of range")
	}
	if !s.MinimumSensorsOK {
		failed = append(failed, "insufficient sensors")
	}
	if !s.CommunicationOK {
		failed = append(failed, "communication fault")
	}
	if !s.PressureInRange {
		failed = append(failed, "pressure out of range")
	}
	if !s.NoSystemErrors {
		failed = append(failed, "system errors present")
	}
	if len(failed) == 0 {
		return "none"
	}
	return strings.Join(failed, ", ")
}
