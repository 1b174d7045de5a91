// Package control implements the burner control plane: the sequencing
// state machine, the temperature regulation cascade, the light-off
// validator and in-burn interlocks, the anti-cycling governor and the
// system-wide failsafe coordinator. One goroutine owns sequencing;
// everything the API layer reads crosses through atomics or bounded
// locks, never through a wait on the control loop.
package control

import "boilerctl/internal/models"

// SnapshotSource supplies sensor snapshots. The sensor store implements
// it; tests substitute fixed snapshots.
type SnapshotSource interface {
	// Snapshot returns a coherent copy of every channel. False means the
	// store lock timed out and the copy is the last published one.
	Snapshot() (models.SensorSnapshot, bool)

	// ConsecutiveReadTimeouts reports how many Snapshot calls in a row
	// fell back.
	ConsecutiveReadTimeouts() int
}

// RelayBank is the actuation surface the control plane drives. The relay
// controller implements it; tests substitute a scripted bank.
type RelayBank interface {
	// Mask returns the last confirmed physical state.
	Mask() models.RelayMask

	// Desired returns the requested state, which trails Mask only while
	// a command is failing.
	Desired() models.RelayMask

	// Set requests one logical output change; guard rejections are
	// returned, never queued.
	Set(r models.Relay, on bool) error

	// SetAllOff opens every relay, bypassing the guards.
	SetAllOff() error

	// EmergencyShutdown forces the emergency posture without waiting on
	// any lock.
	EmergencyShutdown()
}

// Escalator receives failsafe escalations. The coordinator implements
// it; components below the coordinator depend on this interface so they
// can be exercised without one.
type Escalator interface {
	Trigger(level models.FailsafeLevel, reason models.FailsafeReason, detail string)
}
