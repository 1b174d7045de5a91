package control

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"boilerctl/internal/config"
	"boilerctl/internal/logger"
	"boilerctl/internal/models"
	"boilerctl/internal/repository"
)

const (
	recoveryCooldown    = 30 * time.Second
	maxRecoveryAttempts = 3

	persistAttempts    = 5
	persistBaseBackoff = 20 * time.Millisecond
	persistTimeout     = 500 * time.Millisecond
)

// HandlerFunc is a subsystem's reaction to an escalation. Handlers run
// on the triggering goroutine and must not block.
type HandlerFunc func(level models.FailsafeLevel, reason models.FailsafeReason)

type subsystemHandler struct {
	sub models.Subsystem
	fn  HandlerFunc
}

// Coordinator owns the system-wide failsafe level. The level is
// monotonic once at Critical or above: further triggers can only raise
// it, and the only way down is the gated recovery path, which lands at
// Warning and never jumps straight to Normal.
//
// Trigger is safe from any goroutine, including the relay controller's
// escalation path, and never blocks on a lock: the level word is a CAS
// loop and fuel posture goes through the relay layer's zero-wait path.
type Coordinator struct {
	log     *logger.Logger
	records repository.EmergencyRepo
	store   SnapshotSource
	relays  RelayBank
	params  *config.SafetyParams
	runtime *RuntimeTracker

	level  atomic.Uint32
	reason atomic.Uint32
	detail atomic.Pointer[string]
	since  atomic.Pointer[time.Time]

	mu       chan struct{}
	attempts int

	// handlers is append-only during assembly, before any loop starts;
	// dispatch reads it without a lock.
	handlers []subsystemHandler

	clock func() time.Time
}

func NewCoordinator(
	records repository.EmergencyRepo,
	store SnapshotSource,
	relays RelayBank,
	params *config.SafetyParams,
	rt *RuntimeTracker,
	log *logger.Logger,
) *Coordinator {
	c := &Coordinator{
		log:     log,
		records: records,
		store:   store,
		relays:  relays,
		params:  params,
		runtime: rt,
		mu:      make(chan struct{}, 1),
		clock:   time.Now,
	}
	empty := ""
	c.detail.Store(&empty)
	return c
}

// Register adds a subsystem handler. Registration happens during
// assembly only, before the control loops start.
func (c *Coordinator) Register(sub models.Subsystem, fn HandlerFunc) {
	c.handlers = append(c.handlers, subsystemHandler{sub: sub, fn: fn})
	c.log.Infof("failsafe: %v handler registered", sub)
}

func (c *Coordinator) acquire() bool {
	select {
	case c.mu <- struct{}{}:
		return true
	case <-time.After(lockTimeout):
		return false
	}
}

func (c *Coordinator) release() { <-c.mu }

// Level returns the current failsafe level.
func (c *Coordinator) Level() models.FailsafeLevel {
	return models.FailsafeLevel(c.level.Load())
}

// Reason returns the root cause of the current incident.
func (c *Coordinator) Reason() models.FailsafeReason {
	return models.FailsafeReason(c.reason.Load())
}

// Detail returns the free-text detail of the last trigger.
func (c *Coordinator) Detail() string {
	if d := c.detail.Load(); d != nil {
		return *d
	}
	return ""
}

// Since returns when the current incident started; zero when the system
// is not in an incident.
func (c *Coordinator) Since() time.Time {
	if t := c.since.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// RecoveryAttempts returns how many recovery attempts the current
// incident has consumed.
func (c *Coordinator) RecoveryAttempts() int {
	if !c.acquire() {
		return 0
	}
	defer c.release()
	return c.attempts
}

// Trigger raises the failsafe level. Triggers at or below the current
// level are ignored once the system is at Critical or above; below that
// band the newest trigger wins so a Warning can still follow a Degraded
// that cleared. Crossing into the severe band captures a forensic
// record before any posture change and persists it with bounded
// retries after fuel is dealt with.
func (c *Coordinator) Trigger(level models.FailsafeLevel, reason models.FailsafeReason, detail string) {
	var prev models.FailsafeLevel
	for {
		cur := models.FailsafeLevel(c.level.Load())
		if level <= cur && cur.Severe() {
			c.log.Warnf("failsafe: ignoring %v trigger while at %v (%s)", level, cur, detail)
			return
		}
		if c.level.CompareAndSwap(uint32(cur), uint32(level)) {
			prev = cur
			break
		}
	}

	c.reason.Store(uint32(reason))
	c.detail.Store(&detail)
	now := c.clock()
	if prev == models.LevelNormal {
		t := now
		c.since.Store(&t)
	}
	c.log.Errorf("failsafe: %v -> %v, reason %v, detail %q", prev, level, reason, detail)

	crossed := !prev.Severe() && level.Severe()

	// The record must capture the relay mask as it was at the incident,
	// not the post-shutdown posture.
	var rec models.EmergencyRecord
	if crossed {
		rec = c.buildRecord(now, level, reason)
	}

	// Fuel posture before anything that can take time.
	if level >= models.LevelEmergency {
		c.relays.EmergencyShutdown()
	}

	if crossed {
		c.runtime.IncEmergencyStop()
		c.persistRecord(rec)
	}

	if level.Severe() {
		for _, h := range c.handlers {
			h.fn(level, reason)
		}
	}
}

func (c *Coordinator) buildRecord(now time.Time, level models.FailsafeLevel, reason models.FailsafeReason) models.EmergencyRecord {
	snap, _ := c.store.Snapshot()
	mask := c.relays.Mask()
	return models.EmergencyRecord{
		OccurredAt:    now,
		Reason:        reason,
		ReasonText:    reason.String(),
		Level:         level,
		LevelText:     level.String(),
		ActiveRelays:  mask,
		HeatingActive: mask.Get(models.RelayBurnerEnable),
		WaterActive:   mask.Get(models.RelayWaterMode),
		BoilerTemp:    snap.BoilerSupply,
		Pressure:      snap.SystemPressure,
	}
}

// persistRecord writes the forensic record with bounded retries and a
// growing backoff. Persistence failure is logged and swallowed: the
// emergency posture never waits on storage.
func (c *Coordinator) persistRecord(rec models.EmergencyRecord) {
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := c.records.Append(ctx, rec)
		cancel()
		if err == nil {
			c.log.Infof("failsafe: emergency record persisted")
			return
		}
		c.log.Errorf("failsafe: persisting emergency record failed (attempt %d/%d): %v",
			attempt, persistAttempts, err)
		if attempt < persistAttempts {
			time.Sleep(time.Duration(attempt) * persistBaseBackoff)
		}
	}
	c.log.Errorf("failsafe: emergency record dropped after %d attempts", persistAttempts)
}

// AttemptRecovery tries to step down from the severe band. It is gated
// three ways: a cooldown since the incident started, a cap on total
// attempts, and a reason-specific check that the root cause has actually
// cleared. Success lands at Warning so the health monitor keeps watching
// before the system is declared normal again.
func (c *Coordinator) AttemptRecovery() error {
	if !c.Level().Severe() {
		return nil
	}
	if !c.acquire() {
		return ErrLockTimeout
	}
	defer c.release()

	if c.attempts >= maxRecoveryAttempts {
		return fmt.Errorf("failsafe: recovery attempts exhausted (%d)", maxRecoveryAttempts)
	}
	now := c.clock()
	if since := c.since.Load(); since != nil {
		if waited := now.Sub(*since); waited < recoveryCooldown {
			return fmt.Errorf("failsafe: recovery cooldown, %v remaining",
				(recoveryCooldown - waited).Round(time.Second))
		}
	}

	c.attempts++
	reason := c.Reason()
	if blocked := c.causeStillPresent(reason, now); blocked != "" {
		c.log.Warnf("failsafe: recovery attempt %d/%d blocked: %s", c.attempts, maxRecoveryAttempts, blocked)
		return fmt.Errorf("failsafe: root cause not cleared: %s", blocked)
	}

	c.level.Store(uint32(models.LevelWarning))
	c.log.Infof("failsafe: recovered to WARNING on attempt %d/%d, reason %v kept for display",
		c.attempts, maxRecoveryAttempts, reason)
	return nil
}

// causeStillPresent returns a non-empty description while the incident's
// root cause is still observable, empty once it has cleared. Reasons
// with no observable signal recover on the cooldown and attempt gates
// alone.
func (c *Coordinator) causeStillPresent(reason models.FailsafeReason, now time.Time) string {
	snap, ok := c.store.Snapshot()
	view := c.params.Snapshot()

	switch reason {
	case models.ReasonEmergencyStop:
		if snap.EmergencyStop {
			return "emergency stop still engaged"
		}
	case models.ReasonSensorFailure, models.ReasonInterlockFault:
		if !ok {
			return "sensor store not readable"
		}
		if n := snap.ValidSensorCount(now, view.SensorStale); n < view.MinSensors {
			return fmt.Sprintf("%d valid sensors, %d required", n, view.MinSensors)
		}
	case models.ReasonOvertemperature:
		if snap.BoilerSupplyValid && snap.BoilerSupply.GreaterOrEqual(view.MaxBoilerTemp) {
			return fmt.Sprintf("boiler still at %s°C", snap.BoilerSupply)
		}
	case models.ReasonOverpressure:
		if snap.SystemPressureValid && snap.SystemPressure.Valid() {
			if snap.SystemPressure < view.PressureMin || snap.SystemPressure > view.PressureMax {
				return fmt.Sprintf("pressure still at %s bar", snap.SystemPressure)
			}
		} else if !view.AllowMissingPressure {
			return "no pressure reading"
		}
	case models.ReasonCommLoss:
		if !snap.CommOK {
			return "sensor link still down"
		}
	case models.ReasonRelayFailure:
		if c.relays.Desired() != c.relays.Mask() {
			return "relay command mismatch persists"
		}
	case models.ReasonLockTimeout:
		if c.store.ConsecutiveReadTimeouts() > 0 {
			return "sensor store still timing out"
		}
	case models.ReasonLowMemory:
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if ms.HeapAlloc > memWarnBytes {
			return fmt.Sprintf("heap still at %d MiB", ms.HeapAlloc>>20)
		}
	}
	return ""
}

// ResetToNormal clears a Warning or Degraded level back to Normal.
// Anything severe goes through AttemptRecovery first. Returns whether
// the clear happened.
func (c *Coordinator) ResetToNormal() bool {
	cleared := c.level.CompareAndSwap(uint32(models.LevelWarning), uint32(models.LevelNormal)) ||
		c.level.CompareAndSwap(uint32(models.LevelDegraded), uint32(models.LevelNormal))
	if !cleared {
		return false
	}
	c.reason.Store(uint32(models.ReasonNone))
	empty := ""
	c.detail.Store(&empty)
	c.since.Store(nil)
	if c.acquire() {
		c.attempts = 0
		c.release()
	}
	c.log.Infof("failsafe: level cleared, system normal")
	return true
}
