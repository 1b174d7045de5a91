package relay

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"boilerctl/internal/config"
	"boilerctl/internal/logger"
	"boilerctl/internal/models"
)

const (
	// Mechanical protection for ordinary switching.
	minSwitchInterval   = 2 * time.Second
	togglesWindow       = time.Minute
	maxTogglesPerWindow = 6

	// Consecutive command failures before escalating. Fuel relays get a
	// shorter leash and a higher severity.
	fuelFailureThreshold  = 2
	otherFailureThreshold = 3

	lockTimeout = 100 * time.Millisecond
)

var (
	ErrInvalidRelay = errors.New("relay: invalid relay index")
	ErrRateLimited  = errors.New("relay: switch rate limit active")
	ErrDwellActive  = errors.New("relay: pump dwell time not elapsed")
	ErrLockTimeout  = errors.New("relay: state lock timeout")
)

// Escalator receives consecutive-failure escalations from the actuation
// layer. The failsafe coordinator implements it.
type Escalator interface {
	Trigger(level models.FailsafeLevel, reason models.FailsafeReason, detail string)
}

// Controller owns the physical outputs. All ordinary changes go through
// Set, which applies the mechanical-protection guards; SetAllOff and
// EmergencyShutdown bypass them because a safety shutdown must never be
// blocked by a mechanism meant to prevent ordinary cycling.
//
// The desired and confirmed masks are published through atomics so
// telemetry and the emergency path never need the guard lock.
type Controller struct {
	log    *logger.Logger
	driver Driver
	params *config.SafetyParams
	esc    Escalator

	mu chan struct{}

	// Guard bookkeeping, guarded by mu. lastChange is the last actual
	// physical change, not the last request.
	lastChange [models.RelayCount]time.Time
	failures   [models.RelayCount]int
	window     [models.RelayCount][]time.Time

	desired   atomic.Uint32
	confirmed atomic.Uint32

	clock func() time.Time
}

// NewController returns a controller with every relay assumed open.
func NewController(driver Driver, params *config.SafetyParams, log *logger.Logger) *Controller {
	return &Controller{
		log:    log,
		driver: driver,
		params: params,
		mu:     make(chan struct{}, 1),
		clock:  time.Now,
	}
}

// BindEscalator wires the failure sink. Called once during assembly,
// before any control loop starts; the coordinator cannot exist first
// because it drives this controller on its emergency path.
func (c *Controller) BindEscalator(esc Escalator) {
	c.esc = esc
}

func (c *Controller) acquire() bool {
	select {
	case c.mu <- struct{}{}:
		return true
	case <-time.After(lockTimeout):
		return false
	}
}

// tryAcquire is the zero-wait variant for the emergency path.
func (c *Controller) tryAcquire() bool {
	select {
	case c.mu <- struct{}{}:
		return true
	default:
		return false
	}
}

func (c *Controller) release() {
	<-c.mu
}

// Mask returns the last confirmed physical state.
func (c *Controller) Mask() models.RelayMask {
	return models.RelayMask(c.confirmed.Load())
}

// Desired returns the requested state, which trails Mask only while a
// command is failing.
func (c *Controller) Desired() models.RelayMask {
	return models.RelayMask(c.desired.Load())
}

// Set requests one logical output change. Same-state requests are
// no-ops. Premature requests are rejected, never queued: the caller owns
// the decision to retry on its next cycle. Only confirmed physical
// changes arm the rate limiter and the dwell guard, so retrying a failed
// command is not throttled by its own failures.
func (c *Controller) Set(r models.Relay, on bool) error {
	if !r.Valid() {
		return ErrInvalidRelay
	}

	// Read outside the guard lock; holding two locks at once is banned.
	dwell := c.params.Snapshot().PumpDwell

	if !c.acquire() {
		return ErrLockTimeout
	}

	now := c.clock()

	if c.Mask().Get(r) == on {
		c.desired.Store(uint32(c.Desired().Set(r, on)))
		c.release()
		return nil
	}

	if !c.lastChange[r].IsZero() {
		if since := now.Sub(c.lastChange[r]); since < minSwitchInterval {
			c.release()
			return fmt.Errorf("%w: %s changed %s ago", ErrRateLimited, r, since)
		}
	}
	c.pruneWindow(r, now)
	if len(c.window[r]) >= maxTogglesPerWindow {
		c.release()
		return fmt.Errorf("%w: %s hit %d toggles per minute", ErrRateLimited, r, maxTogglesPerWindow)
	}

	if r.IsPump() && !c.lastChange[r].IsZero() {
		if since := now.Sub(c.lastChange[r]); since < dwell {
			c.release()
			return fmt.Errorf("%w: %s changed %s ago, dwell is %s", ErrDwellActive, r, since, dwell)
		}
	}

	c.desired.Store(uint32(c.Desired().Set(r, on)))

	if err := c.driver.Apply(r, on); err != nil {
		c.failures[r]++
		threshold := otherFailureThreshold
		level := models.LevelWarning
		if r.IsFuel() {
			threshold = fuelFailureThreshold
			level = models.LevelCritical
		}
		escalate := c.failures[r] >= threshold
		if escalate {
			// Reset so a stuck relay escalates once per streak, not on
			// every further attempt.
			c.failures[r] = 0
		}
		c.release()

		c.log.Errorf("relay %s -> %v failed: %v", r, on, err)
		if escalate && c.esc != nil {
			c.esc.Trigger(level, models.ReasonRelayFailure,
				fmt.Sprintf("%s failed %d consecutive commands", r, threshold))
		}
		return fmt.Errorf("apply %s: %w", r, err)
	}

	c.confirmed.Store(uint32(c.Mask().Set(r, on)))
	c.lastChange[r] = now
	c.window[r] = append(c.window[r], now)
	c.failures[r] = 0
	c.release()
	return nil
}

// pruneWindow drops toggle timestamps older than the budget window.
// Callers must hold the lock.
func (c *Controller) pruneWindow(r models.Relay, now time.Time) {
	w := c.window[r]
	keep := w[:0]
	for _, ts := range w {
		if now.Sub(ts) < togglesWindow {
			keep = append(keep, ts)
		}
	}
	c.window[r] = keep
}

// SetAllOff opens every relay, bypassing the guards. Used at boot to
// reach a known state and on orderly shutdown.
func (c *Controller) SetAllOff() error {
	locked := c.acquire()
	if locked {
		defer c.release()
	} else {
		c.log.Warn("all-off proceeding without state lock")
	}

	cmds := make([]models.RelayCommand, 0, models.RelayCount)
	for r := models.Relay(0); r < models.RelayCount; r++ {
		cmds = append(cmds, models.RelayCommand{Relay: r, On: false})
	}
	if errs := c.applyForced(cmds, locked); len(errs) > 0 {
		return fmt.Errorf("all-off errors: %v", errs)
	}
	return nil
}

// EmergencyShutdown forces the emergency posture: fuel closed, both
// pumps running to dump residual heat, alarm on. The lock attempt is
// zero-wait and the commands go out regardless; a stuck mutex must never
// delay this path. Failures are logged, not escalated, because this is
// already the escalation.
func (c *Controller) EmergencyShutdown() {
	locked := c.tryAcquire()
	if locked {
		defer c.release()
	} else {
		c.log.Error("emergency shutdown proceeding without state lock")
	}

	cmds := []models.RelayCommand{
		{Relay: models.RelayBurnerEnable, On: false},
		{Relay: models.RelayPowerBoost, On: false},
		{Relay: models.RelayWaterMode, On: false},
		{Relay: models.RelayHeatingPump, On: true},
		{Relay: models.RelayWaterPump, On: true},
		{Relay: models.RelayAlarm, On: true},
	}
	if errs := c.applyForced(cmds, locked); len(errs) > 0 {
		c.log.Errorf("emergency shutdown: %v", errs)
	}
}

// applyForced drives commands with no guard checks. Every command is
// sent even if the previous one failed. Guard bookkeeping is updated
// only when the caller holds the lock; physical switches still count for
// later dwell decisions, so skipping bookkeeping on a contended
// emergency is the lesser risk.
func (c *Controller) applyForced(cmds []models.RelayCommand, locked bool) []error {
	now := c.clock()
	var errs []error
	for _, cmd := range cmds {
		c.desired.Store(uint32(c.Desired().Set(cmd.Relay, cmd.On)))
		changed := c.Mask().Get(cmd.Relay) != cmd.On
		if err := c.driver.Apply(cmd.Relay, cmd.On); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cmd.Relay, err))
			continue
		}
		c.confirmed.Store(uint32(c.Mask().Set(cmd.Relay, cmd.On)))
		if changed && locked {
			c.lastChange[cmd.Relay] = now
			c.window[cmd.Relay] = append(c.window[cmd.Relay], now)
		}
	}
	return errs
}
