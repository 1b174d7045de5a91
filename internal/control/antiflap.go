package control

import (
	"time"

	"boilerctl/internal/logger"
	"boilerctl/internal/models"
)

// Flapping guards. The power-change interval protects the boost solenoid
// valve, the on/off minimums protect the burner itself.
const (
	minOnTime         = 2 * time.Minute
	minOffTime        = 20 * time.Second
	minPowerChangeGap = 15 * time.Second
	pidOutputDeadband = models.Temperature(50) // ±5.0 on the modulation scale
)

// AntiFlap enforces minimum burner on/off times and a minimum interval
// between power-level changes. All predicates fail safe on lock timeout:
// a request to turn ON is denied, a request to turn OFF is allowed.
//
// Power-level changes go through a reserve/commit/rollback cycle so the
// window between "may I change" and the relay actually switching cannot
// admit a second conflicting change.
type AntiFlap struct {
	log *logger.Logger
	mu  chan struct{}

	burnerOn bool
	level    models.PowerLevel

	reservationPending bool
	reservedLevel      models.PowerLevel

	lastOn          time.Time
	lastOff         time.Time
	lastPowerChange time.Time

	clock func() time.Time
}

// NewAntiFlap builds the governor. The zero-valued off timestamp means a
// freshly booted system may start immediately; only a Reset re-arms the
// minimum-off wait.
func NewAntiFlap(log *logger.Logger) *AntiFlap {
	return &AntiFlap{
		log:   log,
		mu:    make(chan struct{}, 1),
		clock: time.Now,
	}
}

func (a *AntiFlap) acquire() bool {
	select {
	case a.mu <- struct{}{}:
		return true
	case <-time.After(lockTimeout):
		return false
	}
}

func (a *AntiFlap) release() { <-a.mu }

// CanTurnOn reports whether the minimum off time has elapsed. Denied on
// lock timeout.
func (a *AntiFlap) CanTurnOn() bool {
	if !a.acquire() {
		a.log.Warnf("antiflap: lock timeout on CanTurnOn, denying")
		return false
	}
	defer a.release()
	if a.burnerOn {
		return true
	}
	return a.clock().Sub(a.lastOff) >= minOffTime
}

// CanTurnOff reports whether the minimum on time has elapsed. Allowed on
// lock timeout: blocking a shutdown is never the safe answer.
func (a *AntiFlap) CanTurnOff() bool {
	if !a.acquire() {
		a.log.Warnf("antiflap: lock timeout on CanTurnOff, allowing")
		return true
	}
	defer a.release()
	if !a.burnerOn {
		return true
	}
	return a.clock().Sub(a.lastOn) >= minOnTime
}

// CanChangePower reports whether a change to the given level is allowed
// right now. On lock timeout only a change to OFF is allowed.
func (a *AntiFlap) CanChangePower(level models.PowerLevel) bool {
	if !a.acquire() {
		a.log.Warnf("antiflap: lock timeout on CanChangePower")
		return level == models.PowerOff
	}
	defer a.release()
	return a.changeAllowed(level)
}

// changeAllowed holds the shared decision logic; callers hold the lock.
func (a *AntiFlap) changeAllowed(level models.PowerLevel) bool {
	if a.level == level {
		return true
	}
	now := a.clock()
	if level == models.PowerOff {
		if !a.burnerOn {
			return true
		}
		return now.Sub(a.lastOn) >= minOnTime
	}
	if a.level == models.PowerOff {
		if a.burnerOn {
			return true
		}
		return now.Sub(a.lastOff) >= minOffTime
	}
	// Half <-> Full while running.
	return now.Sub(a.lastPowerChange) >= minPowerChangeGap
}

// ReservePowerChange atomically checks and reserves a power-level change,
// closing the race between the check and the relay actually switching.
// A second reservation while one is pending is denied. A reservation to
// the current level succeeds without reserving anything.
func (a *AntiFlap) ReservePowerChange(level models.PowerLevel) bool {
	if !a.acquire() {
		a.log.Warnf("antiflap: lock timeout on ReservePowerChange")
		return level == models.PowerOff
	}
	defer a.release()

	if a.reservationPending {
		a.log.Debugf("antiflap: change already reserved (%v), denying %v", a.reservedLevel, level)
		return false
	}
	if a.level == level {
		return true
	}
	if level == models.PowerOff && !a.burnerOn {
		return true
	}
	if !a.changeAllowed(level) {
		return false
	}
	a.reservationPending = true
	a.reservedLevel = level
	a.log.Debugf("antiflap: reserved power change %v -> %v", a.level, level)
	return true
}

// CommitPowerChange releases a pending reservation after the relay
// switch succeeded. The state itself is updated via RecordPowerChange.
func (a *AntiFlap) CommitPowerChange() {
	if !a.acquire() {
		a.log.Errorf("antiflap: lock timeout on commit, state may be inconsistent")
		return
	}
	defer a.release()
	if !a.reservationPending {
		a.log.Warnf("antiflap: commit with no reservation pending")
		return
	}
	a.reservationPending = false
}

// RollbackPowerChange releases a pending reservation after the relay
// switch failed or was abandoned.
func (a *AntiFlap) RollbackPowerChange() {
	if !a.acquire() {
		a.log.Errorf("antiflap: lock timeout on rollback")
		return
	}
	defer a.release()
	if !a.reservationPending {
		return
	}
	a.log.Infof("antiflap: rolling back reserved change to %v", a.reservedLevel)
	a.reservationPending = false
	a.reservedLevel = a.level
}

// RecordBurnerOn marks the burner as running and starts the minimum-on
// clock.
func (a *AntiFlap) RecordBurnerOn() {
	if !a.acquire() {
		a.log.Errorf("antiflap: lock timeout on RecordBurnerOn, state may be inconsistent")
		return
	}
	defer a.release()
	if !a.burnerOn {
		a.burnerOn = true
		a.lastOn = a.clock()
		a.log.Infof("antiflap: burner on, minimum runtime armed")
	}
}

// RecordBurnerOff marks the burner as stopped and starts the minimum-off
// clock.
func (a *AntiFlap) RecordBurnerOff() {
	if !a.acquire() {
		a.log.Errorf("antiflap: lock timeout on RecordBurnerOff, state may be inconsistent")
		return
	}
	defer a.release()
	a.recordOffLocked()
}

func (a *AntiFlap) recordOffLocked() {
	if !a.burnerOn {
		return
	}
	a.burnerOn = false
	a.lastOff = a.clock()
	a.level = models.PowerOff
	a.log.Infof("antiflap: burner off after %v runtime", a.lastOff.Sub(a.lastOn).Round(time.Second))
}

// RecordPowerChange records the committed level and, for transitions
// through OFF, the implied burner on/off events.
func (a *AntiFlap) RecordPowerChange(level models.PowerLevel) {
	if !a.acquire() {
		a.log.Errorf("antiflap: lock timeout on RecordPowerChange, state may be inconsistent")
		return
	}
	defer a.release()

	if a.level == level {
		return
	}
	old := a.level
	a.level = level
	a.lastPowerChange = a.clock()
	a.log.Infof("antiflap: power level %v -> %v", old, level)

	switch {
	case level == models.PowerOff && old != models.PowerOff:
		a.recordOffLocked()
	case level != models.PowerOff && old == models.PowerOff:
		if !a.burnerOn {
			a.burnerOn = true
			a.lastOn = a.lastPowerChange
			a.log.Infof("antiflap: burner on, minimum runtime armed")
		}
	}
}

// TimeUntilOn returns the remaining minimum-off wait, zero when a start
// is already allowed. Zero on lock timeout.
func (a *AntiFlap) TimeUntilOn() time.Duration {
	if !a.acquire() {
		return 0
	}
	defer a.release()
	if a.burnerOn {
		return 0
	}
	return remaining(a.clock().Sub(a.lastOff), minOffTime)
}

// TimeUntilOff returns the remaining minimum-on wait. Zero on lock
// timeout.
func (a *AntiFlap) TimeUntilOff() time.Duration {
	if !a.acquire() {
		return 0
	}
	defer a.release()
	if !a.burnerOn {
		return 0
	}
	return remaining(a.clock().Sub(a.lastOn), minOnTime)
}

// TimeUntilPowerChange returns the remaining power-change wait. Zero on
// lock timeout.
func (a *AntiFlap) TimeUntilPowerChange() time.Duration {
	if !a.acquire() {
		return 0
	}
	defer a.release()
	return remaining(a.clock().Sub(a.lastPowerChange), minPowerChangeGap)
}

func remaining(elapsed, minimum time.Duration) time.Duration {
	if elapsed >= minimum {
		return 0
	}
	return minimum - elapsed
}

// SignificantChange reports whether the difference between two regulator
// outputs exceeds the deadband. Minor PID jitter below the deadband is
// not worth a relay cycle.
func (a *AntiFlap) SignificantChange(previous, current models.Temperature) bool {
	return current.Sub(previous).Abs().Greater(pidOutputDeadband)
}

// Reset clears all state and re-arms the minimum-off wait from now, so a
// restart after a fault cannot relight immediately.
func (a *AntiFlap) Reset() {
	if !a.acquire() {
		a.log.Errorf("antiflap: lock timeout on reset, forcing anyway")
	} else {
		defer a.release()
	}
	a.log.Warnf("antiflap: state reset")
	a.burnerOn = false
	a.level = models.PowerOff
	a.reservationPending = false
	a.reservedLevel = models.PowerOff
	a.lastOn = time.Time{}
	a.lastOff = a.clock()
	a.lastPowerChange = time.Time{}
}
