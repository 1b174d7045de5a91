package control

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"boilerctl/internal/config"
	"boilerctl/internal/logger"
	"boilerctl/internal/models"
)

const (
	tickInterval       = time.Second
	prePurgeTime       = 2 * time.Second
	minIgnitionTime    = 3 * time.Second
	ignitionTimeout    = 5 * time.Second
	maxIgnitionRetries = 3
	lockoutDuration    = 5 * time.Minute
	modeSwitchGrace    = 2 * time.Second

	// demandExpiry is the dead-man window on heat demands. The regulator
	// refreshes its demand every cycle, so expiry only ever catches a
	// demand that was set manually and then abandoned.
	demandExpiry = 10 * time.Minute

	// highPowerBlockTemp caps modulation: no full power at or above this
	// supply temperature.
	highPowerBlockTemp models.Temperature = 800 // 80.0°C
)

var (
	ErrInvalidDemand = errors.New("control: invalid heat demand")
	ErrNotLockedOut  = errors.New("control: burner is not locked out")
	ErrNotInError    = errors.New("control: burner is not in error state")
)

// EventSink receives burner lifecycle events for the persisted log.
// Implementations must not block the control loop.
type EventSink interface {
	Record(eventType, description string)
}

// MachineDeps collects the collaborators the state machine drives.
type MachineDeps struct {
	Store     SnapshotSource
	Relays    RelayBank
	Pumps     *PumpController
	Flap      *AntiFlap
	Validator *Validator
	Interlock *InterlockMonitor
	Coord     *Coordinator
	Runtime   *RuntimeTracker
	Params    *config.SafetyParams
	Events    EventSink
}

// Machine is the burner sequencing state machine. One goroutine runs the
// tick loop; operator commands serialize against it through the bounded
// lock. Everything the status surface reads is published through
// atomics, and EmergencyShutdown takes no lock at all so an escalation
// can never wait behind a tick.
type Machine struct {
	log       *logger.Logger
	store     SnapshotSource
	relays    RelayBank
	pumps     *PumpController
	flap      *AntiFlap
	validator *Validator
	interlock *InterlockMonitor
	coord     *Coordinator
	runtime   *RuntimeTracker
	params    *config.SafetyParams
	events    EventSink

	state   atomic.Uint32
	mode    atomic.Uint32
	level   atomic.Uint32
	retries atomic.Int32

	enteredAtNano    atomic.Int64
	lockoutUntilNano atomic.Int64

	demand   atomic.Pointer[models.HeatDemand]
	enabled  atomic.Bool
	stopping atomic.Bool

	mu chan struct{}

	// pendingMode is the target of a mode switch in progress; touched
	// only from the tick loop.
	pendingMode models.BurnerMode

	clock func() time.Time
}

func NewMachine(deps MachineDeps, log *logger.Logger) *Machine {
	m := &Machine{
		log:       log,
		store:     deps.Store,
		relays:    deps.Relays,
		pumps:     deps.Pumps,
		flap:      deps.Flap,
		validator: deps.Validator,
		interlock: deps.Interlock,
		coord:     deps.Coord,
		runtime:   deps.Runtime,
		params:    deps.Params,
		events:    deps.Events,
		mu:        make(chan struct{}, 1),
		clock:     time.Now,
	}
	m.enteredAtNano.Store(m.clock().UnixNano())
	return m
}

func (m *Machine) acquire() bool {
	select {
	case m.mu <- struct{}{}:
		return true
	case <-time.After(lockTimeout):
		return false
	}
}

func (m *Machine) release() { <-m.mu }

// State returns the current sequencing state.
func (m *Machine) State() models.BurnerState {
	return models.BurnerState(m.state.Load())
}

// Mode returns the circuit the burner currently serves.
func (m *Machine) Mode() models.BurnerMode {
	return models.BurnerMode(m.mode.Load())
}

// Power returns the current power level.
func (m *Machine) Power() models.PowerLevel {
	return models.PowerLevel(m.level.Load())
}

// IgnitionAttempts returns the failed attempts in the current start
// sequence.
func (m *Machine) IgnitionAttempts() int {
	return int(m.retries.Load())
}

// LockoutUntil returns when the current lockout releases, zero when not
// locked out.
func (m *Machine) LockoutUntil() time.Time {
	n := m.lockoutUntilNano.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Enabled reports whether the operator has the system switched on.
func (m *Machine) Enabled() bool { return m.enabled.Load() }

// Demand returns the current heat demand, zero when none was ever set.
func (m *Machine) Demand() models.HeatDemand {
	if d := m.demand.Load(); d != nil {
		return *d
	}
	return models.HeatDemand{}
}

// Enable switches the system on. The burner still waits for a demand and
// a clean validation before lighting.
func (m *Machine) Enable() {
	if m.enabled.Swap(true) {
		return
	}
	m.log.Infof("burner: system enabled")
	m.events.Record(models.EventBoilerEnabled, "enabled by operator")
}

// Disable switches the system off. A burn in progress stops through the
// normal purge path on the next tick; pump overrun still applies.
func (m *Machine) Disable() {
	if !m.enabled.Swap(false) {
		return
	}
	m.log.Infof("burner: system disabled")
	m.events.Record(models.EventBoilerDisabled, "disabled by operator")
}

// SetDemand replaces the heat demand. Every call stores a fresh
// timestamp, so a periodic re-send keeps the demand alive past the
// expiry watchdog; only material changes are logged.
func (m *Machine) SetDemand(d models.HeatDemand) error {
	if d.Active {
		if d.Mode == models.ModeOff {
			return fmt.Errorf("%w: active demand with mode OFF", ErrInvalidDemand)
		}
		if !d.Target.Valid() || d.Target <= 0 {
			return fmt.Errorf("%w: target %v", ErrInvalidDemand, d.Target)
		}
	}
	d.UpdatedAt = m.clock()
	prev := m.demand.Swap(&d)
	if prev == nil || prev.Active != d.Active || prev.Mode != d.Mode ||
		prev.Target != d.Target || prev.HighPower != d.HighPower {
		m.log.Infof("burner: demand %s", describeDemand(d))
		m.events.Record(models.EventDemandChange, describeDemand(d))
	}
	return nil
}

func describeDemand(d models.HeatDemand) string {
	if !d.Active {
		return "inactive"
	}
	return fmt.Sprintf("%v target %s°C high-power %v", d.Mode, d.Target, d.HighPower)
}

// EmergencyShutdown drops the burner into Error with the emergency relay
// posture. It takes no lock and is idempotent: the stopping latch holds
// until ResetError. Safe to call from any goroutine, including the
// failsafe dispatch that may be running inside a tick.
func (m *Machine) EmergencyShutdown(detail string) {
	if m.stopping.Swap(true) {
		return
	}
	now := m.clock()
	prev := models.BurnerState(m.state.Load())
	m.state.Store(uint32(models.StateError))
	m.enteredAtNano.Store(now.UnixNano())
	m.level.Store(uint32(models.PowerOff))
	m.relays.EmergencyShutdown()
	m.pumps.ForceOn()
	m.flap.RecordBurnerOff()
	m.runtime.RecordBurnerStop(now)
	m.log.Errorf("burner: emergency shutdown from %v: %s", prev, detail)
	m.events.Record(models.EventEmergencyStop, detail)
}

// ResetLockout releases an ignition lockout early.
func (m *Machine) ResetLockout() error {
	if !m.acquire() {
		return ErrLockTimeout
	}
	defer m.release()
	if models.BurnerState(m.state.Load()) != models.StateLockout {
		return ErrNotLockedOut
	}
	m.log.Infof("burner: lockout reset by operator")
	m.clearLockout(m.clock())
	return nil
}

// ResetError leaves the Error state after the minimum dwell, provided
// the failsafe coordinator has already recovered out of the severe band.
func (m *Machine) ResetError() error {
	if !m.acquire() {
		return ErrLockTimeout
	}
	defer m.release()
	now := m.clock()
	if models.BurnerState(m.state.Load()) != models.StateError {
		return ErrNotInError
	}
	view := m.params.Snapshot()
	if held := now.Sub(time.Unix(0, m.enteredAtNano.Load())); held < view.ErrorRecovery {
		return fmt.Errorf("error state held %v, minimum is %v",
			held.Round(time.Second), view.ErrorRecovery)
	}
	if lvl := m.coord.Level(); lvl.Severe() {
		return fmt.Errorf("failsafe level is %v, recover it first", lvl)
	}
	m.stopping.Store(false)
	m.retries.Store(0)
	m.mode.Store(uint32(models.ModeOff))
	m.level.Store(uint32(models.PowerOff))
	m.flap.Reset()
	m.pumps.SetModeActive(models.ModeHeating, false, now)
	m.pumps.SetModeActive(models.ModeWater, false, now)
	if err := m.relays.Set(models.RelayAlarm, false); err != nil {
		m.log.Warnf("burner: alarm off: %v", err)
	}
	m.transition(models.StateIdle, now)
	m.events.Record(models.EventRecovery, "error state reset by operator")
	return nil
}

// Run drives the tick loop until the context ends, then forces all
// outputs open so the next boot starts from a known state.
func (m *Machine) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	m.log.Infof("burner: control loop started")
	for {
		select {
		case <-ctx.Done():
			m.log.Infof("burner: control loop stopping")
			if err := m.relays.SetAllOff(); err != nil {
				m.log.Errorf("burner: final all-off: %v", err)
			}
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Machine) tick() {
	if !m.acquire() {
		m.log.Warnf("burner: tick skipped, command in progress")
		return
	}
	defer m.release()

	now := m.clock()

	// The stopping latch may have been set between a tick's entry check
	// and its state store; converge on Error here.
	if m.stopping.Load() {
		m.state.Store(uint32(models.StateError))
		return
	}

	state := models.BurnerState(m.state.Load())
	if state == models.StateError {
		return
	}

	mode := models.BurnerMode(m.mode.Load())
	active := state.IsActive()
	safe := m.interlock.ContinuousCheck(m.enabled.Load(),
		active && mode == models.ModeHeating,
		active && mode == models.ModeWater, now)
	if !safe {
		m.coord.Trigger(models.LevelEmergency, models.ReasonInterlockFault,
			fmt.Sprintf("interlock check failed in %v", state))
		return
	}

	d := m.demand.Load()
	if d != nil && d.Active && now.Sub(d.UpdatedAt) > demandExpiry {
		m.log.Warnf("burner: demand last refreshed %v ago, expiring it",
			now.Sub(d.UpdatedAt).Round(time.Second))
		expired := *d
		expired.Active = false
		m.demand.Store(&expired)
		m.events.Record(models.EventDemandChange, "demand expired")
		d = &expired
	}

	if !m.enabled.Load() {
		m.handleDisabled(state, now)
	} else {
		switch state {
		case models.StateIdle:
			m.tickIdle(d, now)
		case models.StatePrePurge:
			m.tickPrePurge(now)
		case models.StateIgnition:
			m.tickIgnition(now)
		case models.StateRunningLow, models.StateRunningHigh:
			m.tickRunning(d, now)
		case models.StateModeSwitching:
			m.tickModeSwitch(now)
		case models.StatePostPurge:
			m.tickPostPurge(now)
		case models.StateLockout:
			m.tickLockout(now)
		}
	}

	if models.BurnerState(m.state.Load()) != models.StateError {
		m.pumps.Update(now)
	}
}

func (m *Machine) handleDisabled(state models.BurnerState, now time.Time) {
	switch {
	case state.IsActive() || state == models.StatePrePurge:
		m.stopBurn(now, "system disabled")
	case state == models.StatePostPurge:
		m.tickPostPurge(now)
	}
}

func (m *Machine) tickIdle(d *models.HeatDemand, now time.Time) {
	if d == nil || !d.Active || d.Mode == models.ModeOff {
		return
	}
	snap, ok := m.store.Snapshot()
	if !ok {
		return
	}
	outcome := m.validator.Validate(snap, now, d.Mode == models.ModeWater)
	if !outcome.Safe() {
		return
	}
	if !m.flap.CanTurnOn() {
		m.log.Debugf("burner: start gated for %v", m.flap.TimeUntilOn().Round(time.Second))
		return
	}

	m.mode.Store(uint32(d.Mode))
	m.retries.Store(0)
	m.pumps.SetModeActive(d.Mode, true, now)
	if d.Mode == models.ModeHeating {
		m.runtime.IncHeatingCycle()
	} else {
		m.runtime.IncWaterCycle()
	}
	m.transition(models.StatePrePurge, now)
}

// tickPrePurge re-validates every cycle so the tick that opens fuel has
// a fresh passing outcome. A snapshot lock timeout parks the purge; the
// interlock circuit breaker escalates if the store stays contended.
func (m *Machine) tickPrePurge(now time.Time) {
	mode := models.BurnerMode(m.mode.Load())
	snap, ok := m.store.Snapshot()
	if !ok {
		return
	}
	if outcome := m.validator.Validate(snap, now, mode == models.ModeWater); !outcome.Safe() {
		m.log.Warnf("burner: start aborted in pre purge: %v", outcome)
		m.events.Record(models.EventSafety, "start aborted in pre purge: "+outcome.String())
		m.stopBurn(now, "validation failed")
		return
	}
	if m.dwell(now) < prePurgeTime {
		return
	}
	m.runtime.IncIgnition()
	m.transition(models.StateIgnition, now)
	m.level.Store(uint32(models.PowerHalf))
	m.applyFuel(mode, models.PowerHalf)
}

func (m *Machine) tickIgnition(now time.Time) {
	mode := models.BurnerMode(m.mode.Load())
	if !FlameActive(m.relays.Mask()) {
		m.applyFuel(mode, models.PowerLevel(m.level.Load()))
	}
	lit := FlameActive(m.relays.Mask())
	held := m.dwell(now)

	if lit && held >= minIgnitionTime {
		m.flap.RecordPowerChange(models.PowerHalf)
		m.runtime.RecordBurnerStart(now)
		m.transition(models.StateRunningLow, now)
		return
	}
	if !lit && held >= ignitionTimeout {
		m.ignitionFailed(mode, now)
	}
}

func (m *Machine) ignitionFailed(mode models.BurnerMode, now time.Time) {
	n := m.retries.Add(1)
	m.applyFuel(mode, models.PowerOff)
	if int(n) < maxIgnitionRetries {
		m.log.Warnf("burner: ignition attempt %d of %d failed, re-purging", n, maxIgnitionRetries)
		m.transition(models.StatePrePurge, now)
		return
	}
	m.log.Errorf("burner: ignition failed %d times, locking out for %v", n, lockoutDuration)
	m.lockoutUntilNano.Store(now.Add(lockoutDuration).UnixNano())
	m.runtime.IncLockout()
	m.events.Record(models.EventLockout, fmt.Sprintf("ignition failed %d attempts", n))
	m.pumps.SetModeActive(mode, false, now)
	if err := m.relays.Set(models.RelayAlarm, true); err != nil {
		m.log.Warnf("burner: alarm on: %v", err)
	}
	m.transition(models.StateLockout, now)
}

func (m *Machine) tickRunning(d *models.HeatDemand, now time.Time) {
	mode := models.BurnerMode(m.mode.Load())
	state := models.BurnerState(m.state.Load())

	// Flame supervision: the confirmed fuel path dropping mid-burn means
	// the relay layer could not hold it.
	if !FlameActive(m.relays.Mask()) {
		m.log.Errorf("burner: flame lost in %v", state)
		m.events.Record(models.EventSafety, "flame lost, purging")
		m.stopBurn(now, "flame lost")
		return
	}

	view := m.params.Snapshot()
	if m.runtime.ContinuousRun(now) > view.MaxContinuousRun ||
		m.runtime.DailyRun(now) > view.MaxDailyRun {
		m.log.Warnf("burner: runtime limit reached, forcing rest")
		m.events.Record(models.EventSafety, "runtime limit reached")
		m.stopBurn(now, "runtime limit")
		return
	}

	if d == nil || !d.Active || d.Mode == models.ModeOff {
		if m.flap.CanTurnOff() {
			m.stopBurn(now, "demand cleared")
		} else {
			m.log.Debugf("burner: stop deferred for %v", m.flap.TimeUntilOff().Round(time.Second))
		}
		return
	}

	if d.Mode != mode {
		if m.flap.CanTurnOff() {
			m.beginModeSwitch(d.Mode, now)
		}
		return
	}

	want := models.PowerHalf
	if d.HighPower {
		want = models.PowerFull
	}
	if snap, ok := m.store.Snapshot(); ok {
		if snap.BoilerSupplyValid && snap.BoilerSupply.GreaterOrEqual(highPowerBlockTemp) {
			want = models.PowerHalf
		}
	}
	cur := models.PowerLevel(m.level.Load())
	if want == cur {
		return
	}
	if !m.flap.ReservePowerChange(want) {
		return
	}
	m.applyFuel(mode, want)
	mask := m.relays.Mask()
	applied := FlameActive(mask) && mask.Get(models.RelayPowerBoost) == (want == models.PowerFull)
	if !applied {
		m.flap.RollbackPowerChange()
		return
	}
	m.flap.CommitPowerChange()
	m.flap.RecordPowerChange(want)
	m.level.Store(uint32(want))
	if want == models.PowerFull {
		m.transition(models.StateRunningHigh, now)
	} else {
		m.transition(models.StateRunningLow, now)
	}
}

// beginModeSwitch relights through its own grace gap instead of the
// anti-flap off time; water priority cannot wait out the minimum off
// period.
func (m *Machine) beginModeSwitch(to models.BurnerMode, now time.Time) {
	from := models.BurnerMode(m.mode.Load())
	m.log.Infof("burner: mode switch %v -> %v", from, to)
	m.events.Record(models.EventModeChange, fmt.Sprintf("%v -> %v", from, to))
	m.applyFuel(from, models.PowerOff)
	m.endBurn(from, now)
	m.pendingMode = to
	m.pumps.SetModeActive(to, true, now)
	m.transition(models.StateModeSwitching, now)
}

func (m *Machine) tickModeSwitch(now time.Time) {
	if m.dwell(now) < modeSwitchGrace {
		return
	}
	to := m.pendingMode
	m.mode.Store(uint32(to))
	m.retries.Store(0)
	if to == models.ModeHeating {
		m.runtime.IncHeatingCycle()
	} else {
		m.runtime.IncWaterCycle()
	}
	m.transition(models.StatePrePurge, now)
}

func (m *Machine) tickPostPurge(now time.Time) {
	if m.dwell(now) < m.params.Snapshot().PostPurge {
		return
	}
	m.transition(models.StateIdle, now)
}

func (m *Machine) tickLockout(now time.Time) {
	if now.Before(time.Unix(0, m.lockoutUntilNano.Load())) {
		return
	}
	m.log.Infof("burner: lockout period elapsed")
	m.clearLockout(now)
}

func (m *Machine) clearLockout(now time.Time) {
	m.retries.Store(0)
	m.lockoutUntilNano.Store(0)
	if err := m.relays.Set(models.RelayAlarm, false); err != nil {
		m.log.Warnf("burner: alarm off: %v", err)
	}
	m.transition(models.StateIdle, now)
	m.events.Record(models.EventRecovery, "lockout released")
}

// stopBurn closes fuel and goes through post purge. Used for orderly
// stops; the emergency path bypasses it entirely.
func (m *Machine) stopBurn(now time.Time, reason string) {
	mode := models.BurnerMode(m.mode.Load())
	m.log.Infof("burner: stopping, %s", reason)
	m.applyFuel(mode, models.PowerOff)
	m.endBurn(mode, now)
	m.transition(models.StatePostPurge, now)
}

func (m *Machine) endBurn(mode models.BurnerMode, now time.Time) {
	m.level.Store(uint32(models.PowerOff))
	m.flap.RecordBurnerOff()
	m.runtime.RecordBurnerStop(now)
	m.pumps.SetModeActive(mode, false, now)
}

func (m *Machine) applyFuel(mode models.BurnerMode, level models.PowerLevel) {
	for _, cmd := range FuelCommands(m.relays.Mask(), mode, level) {
		if err := m.relays.Set(cmd.Relay, cmd.On); err != nil {
			m.log.Warnf("burner: %v -> %v: %v", cmd.Relay, cmd.On, err)
		}
	}
}

func (m *Machine) dwell(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, m.enteredAtNano.Load()))
}

// transition moves the machine to a new state. The stopping latch wins
// over any transition raced against it except Error itself.
func (m *Machine) transition(to models.BurnerState, now time.Time) {
	if m.stopping.Load() && to != models.StateError {
		return
	}
	from := models.BurnerState(m.state.Load())
	if from == to {
		return
	}
	m.state.Store(uint32(to))
	m.enteredAtNano.Store(now.UnixNano())
	m.log.Infof("burner: %v -> %v", from, to)
	m.events.Record(models.EventStateChange, fmt.Sprintf("%v -> %v", from, to))
}
