package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"boilerctl/internal/config"
	"boilerctl/internal/logger"
	"boilerctl/internal/models"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)}
}

// fakeStore is a scripted SnapshotSource. Tests mutate snap directly;
// healthy resets every channel to plausible in-range values.
type fakeStore struct {
	snap     models.SensorSnapshot
	miss     bool
	timeouts int
}

func (f *fakeStore) Snapshot() (models.SensorSnapshot, bool) {
	if f.miss {
		f.timeouts++
		return f.snap, false
	}
	f.timeouts = 0
	return f.snap, true
}

func (f *fakeStore) ConsecutiveReadTimeouts() int { return f.timeouts }

func (f *fakeStore) healthy(now time.Time) {
	f.snap = models.SensorSnapshot{
		BoilerSupply:        600,
		BoilerReturn:        500,
		BoilerSupplyValid:   true,
		BoilerReturnValid:   true,
		TankTemp:            500,
		TankTempValid:       true,
		OutsideTemp:         50,
		InsideTemp:          215,
		OutsideTempValid:    true,
		InsideTempValid:     true,
		SystemPressure:      150,
		SystemPressureValid: true,
		CommOK:              true,
		UpdatedAt:           now,
		PressureUpdatedAt:   now,
	}
	f.miss = false
	f.timeouts = 0
}

var (
	errDriverFault = errors.New("driver fault")
	errGuardReject = errors.New("rate limited")
)

// fakeRelays is a scripted RelayBank. A guard rejection fails before the
// desired state is recorded and a driver fault after, the same split the
// real controller has, so tests can exercise both failure shapes.
type fakeRelays struct {
	mask       models.RelayMask
	desired    models.RelayMask
	rejectFuel bool
	failFuel   bool
	shutdowns  int
	allOffs    int
}

func (f *fakeRelays) Mask() models.RelayMask    { return f.mask }
func (f *fakeRelays) Desired() models.RelayMask { return f.desired }

func (f *fakeRelays) Set(r models.Relay, on bool) error {
	if on && f.rejectFuel && r.IsFuel() {
		return errGuardReject
	}
	f.desired = f.desired.Set(r, on)
	if on && f.failFuel && r.IsFuel() {
		return errDriverFault
	}
	f.mask = f.mask.Set(r, on)
	return nil
}

func (f *fakeRelays) SetAllOff() error {
	f.allOffs++
	f.mask = 0
	f.desired = 0
	return nil
}

func (f *fakeRelays) EmergencyShutdown() {
	f.shutdowns++
	posture := models.RelayMask(0).
		Set(models.RelayHeatingPump, true).
		Set(models.RelayWaterPump, true).
		Set(models.RelayAlarm, true)
	f.mask = posture
	f.desired = posture
}

type escalation struct {
	level  models.FailsafeLevel
	reason models.FailsafeReason
	detail string
}

type fakeEscalator struct {
	calls []escalation
}

func (f *fakeEscalator) Trigger(level models.FailsafeLevel, reason models.FailsafeReason, detail string) {
	f.calls = append(f.calls, escalation{level, reason, detail})
}

type sinkEntry struct {
	typ  string
	desc string
}

type fakeSink struct {
	mu      sync.Mutex
	entries []sinkEntry
}

func (f *fakeSink) Record(eventType, description string) {
	f.mu.Lock()
	f.entries = append(f.entries, sinkEntry{eventType, description})
	f.mu.Unlock()
}

func (f *fakeSink) count(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if e.typ == eventType {
			n++
		}
	}
	return n
}

func (f *fakeSink) has(eventType string) bool { return f.count(eventType) > 0 }

type fakeCounters struct {
	mu      sync.Mutex
	stored  models.RuntimeCounters
	loadErr error
	saves   int
}

func (f *fakeCounters) Load(context.Context) (models.RuntimeCounters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return models.RuntimeCounters{}, f.loadErr
	}
	return f.stored, nil
}

func (f *fakeCounters) Save(_ context.Context, c models.RuntimeCounters) error {
	f.mu.Lock()
	f.stored = c
	f.saves++
	f.mu.Unlock()
	return nil
}

type fakeEmergencies struct {
	mu       sync.Mutex
	records  []models.EmergencyRecord
	failures int
}

func (f *fakeEmergencies) Append(_ context.Context, rec models.EmergencyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("storage unavailable")
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeEmergencies) List(context.Context) ([]models.EmergencyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.EmergencyRecord(nil), f.records...), nil
}

func (f *fakeEmergencies) Clear(context.Context) error {
	f.mu.Lock()
	f.records = nil
	f.mu.Unlock()
	return nil
}

func testParams(t *testing.T) *config.SafetyParams {
	t.Helper()
	return testParamsWith(t, func(*config.SafetyFileConfig) {})
}

func testParamsWith(t *testing.T, mut func(*config.SafetyFileConfig)) *config.SafetyParams {
	t.Helper()
	fc := config.SafetyFileConfig{
		PressureMin:      100,
		PressureMax:      350,
		MaxBoilerTempC:   110,
		MaxWaterTempC:    65,
		ThermalShockC:    30,
		MinSensors:       2,
		MaxContinuousRun: 4 * time.Hour,
		MaxDailyRun:      16 * time.Hour,
		PumpDwell:        15 * time.Second,
		SensorStale:      60 * time.Second,
		PostPurge:        90 * time.Second,
		ErrorRecovery:    5 * time.Minute,
		PIDIntegralMinC:  -100,
		PIDIntegralMaxC:  100,
	}
	mut(&fc)
	p, err := config.NewSafetyParams(fc)
	require.NoError(t, err)
	return p
}

func testLog() *logger.Logger {
	return logger.Get("error").Component("control")
}

// rig wires a full control plane around scripted relays, sensors and
// storage, with one fake clock driving every component.
type rig struct {
	clock  *fakeClock
	store  *fakeStore
	relays *fakeRelays
	params *config.SafetyParams
	flap   *AntiFlap
	pumps  *PumpController
	rt     *RuntimeTracker
	valid  *Validator
	inter  *InterlockMonitor
	coord  *Coordinator
	sink   *fakeSink
	emerg  *fakeEmergencies
	m      *Machine
}

func newRig(t *testing.T) *rig {
	t.Helper()
	log := testLog()
	clock := newClock()

	r := &rig{
		clock:  clock,
		store:  &fakeStore{},
		relays: &fakeRelays{},
		params: testParams(t),
		sink:   &fakeSink{},
		emerg:  &fakeEmergencies{},
	}
	r.store.healthy(clock.now())

	r.rt = NewRuntimeTracker(context.Background(), &fakeCounters{}, log)
	r.rt.clock = clock.now
	r.rt.bootAt = clock.now()
	r.rt.dayStart = clock.now()

	r.flap = NewAntiFlap(log)
	r.flap.clock = clock.now

	r.pumps = NewPumpController(r.relays, r.rt, log)
	r.valid = NewValidator(r.params, r.rt, log)

	r.coord = NewCoordinator(r.emerg, r.store, r.relays, r.params, r.rt, log)
	r.coord.clock = clock.now

	r.inter = NewInterlockMonitor(r.store, r.relays, r.params, r.coord, log)

	r.m = NewMachine(MachineDeps{
		Store:     r.store,
		Relays:    r.relays,
		Pumps:     r.pumps,
		Flap:      r.flap,
		Validator: r.valid,
		Interlock: r.inter,
		Coord:     r.coord,
		Runtime:   r.rt,
		Params:    r.params,
		Events:    r.sink,
	}, log)
	r.m.clock = clock.now
	r.m.enteredAtNano.Store(clock.now().UnixNano())

	r.coord.Register(models.SubsystemBurner, func(level models.FailsafeLevel, reason models.FailsafeReason) {
		r.m.EmergencyShutdown(fmt.Sprintf("failsafe %v, %v", level, reason))
	})
	r.coord.Register(models.SubsystemPumps, func(models.FailsafeLevel, models.FailsafeReason) {
		r.pumps.ForceOn()
	})
	return r
}

// refresh re-stamps the sensor snapshot so advancing the clock does not
// trip the staleness checks; channel values and flags are left alone.
func (r *rig) refresh() {
	now := r.clock.now()
	r.store.snap.UpdatedAt = now
	r.store.snap.PressureUpdatedAt = now
}

// step advances the clock, refreshes sensor freshness and runs one tick.
func (r *rig) step(d time.Duration) {
	r.clock.advance(d)
	r.refresh()
	r.m.tick()
}

func heatingDemand() models.HeatDemand {
	return models.HeatDemand{Active: true, Mode: models.ModeHeating, Target: 650}
}

// light walks the machine from Idle through the start sequence up to
// RunningLow.
func (r *rig) light(t *testing.T) {
	t.Helper()
	r.m.Enable()
	require.NoError(t, r.m.SetDemand(heatingDemand()))
	r.m.tick()
	require.Equal(t, models.StatePrePurge, r.m.State())
	r.step(prePurgeTime)
	require.Equal(t, models.StateIgnition, r.m.State())
	r.step(minIgnitionTime)
	require.Equal(t, models.StateRunningLow, r.m.State())
}
