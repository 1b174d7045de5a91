package models

import "time"

// Event types recorded in the boiler event log.
const (
	EventStateChange    = "STATE_CHANGE"
	EventModeChange     = "MODE_CHANGE"
	EventDemandChange   = "DEMAND_CHANGE"
	EventSafety         = "SAFETY"
	EventFailsafe       = "FAILSAFE"
	EventRelay          = "RELAY"
	EventRecovery       = "RECOVERY"
	EventLockout        = "LOCKOUT"
	EventConfigChange   = "CONFIG_CHANGE"
	EventEmergencyStop  = "EMERGENCY_STOP"
	EventBoilerEnabled  = "BOILER_ENABLED"
	EventBoilerDisabled = "BOILER_DISABLED"
)

// BoilerEvent is a single entry in the append-only event log.
type BoilerEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
