package control

import (
	"sync/atomic"
	"time"

	"boilerctl/internal/config"
	"boilerctl/internal/logger"
	"boilerctl/internal/models"
)

const (
	// criticalBoilerTemp is the hard ceiling checked on every cycle. It
	// sits above the configurable MaxBoilerTemp limit and does not move
	// with it.
	criticalBoilerTemp models.Temperature = 1150 // 115.0°C

	interlockStale    = 15 * time.Second
	fullCheckInterval = 5 * time.Second

	maxSnapshotMisses = 3
)

// InterlockMonitor runs the in-burn safety checks. The critical
// conditions (stop input, hard temperature ceiling, data age) are
// evaluated on every call; the full interlock pass runs on a 5 second
// cadence and only while a burn is active.
//
// ContinuousCheck is called from the burner loop goroutine only, so the
// cadence state carries no lock. The last full-check result is published
// through an atomic pointer for the status surface.
type InterlockMonitor struct {
	log    *logger.Logger
	store  SnapshotSource
	relays RelayBank
	params *config.SafetyParams
	esc    Escalator

	last     atomic.Pointer[models.InterlockStatus]
	lastFull time.Time
	misses   int
}

func NewInterlockMonitor(
	store SnapshotSource,
	relays RelayBank,
	params *config.SafetyParams,
	esc Escalator,
	log *logger.Logger,
) *InterlockMonitor {
	return &InterlockMonitor{
		log:    log,
		store:  store,
		relays: relays,
		params: params,
		esc:    esc,
	}
}

// Status returns the most recent full-check result, zero before the
// first full pass.
func (m *InterlockMonitor) Status() models.InterlockStatus {
	return m.cached()
}

func (m *InterlockMonitor) cached() models.InterlockStatus {
	if st := m.last.Load(); st != nil {
		return *st
	}
	return models.InterlockStatus{}
}

// snapshotMissed is the circuit breaker for a starved sensor store. The
// first misses hold the last known status; a run of them escalates and
// reports unsafe until a snapshot comes through again.
func (m *InterlockMonitor) snapshotMissed() bool {
	m.misses++
	if m.misses >= maxSnapshotMisses {
		m.log.Errorf("interlock: sensor snapshot unavailable %d times in a row", m.misses)
		m.esc.Trigger(models.LevelDegraded, models.ReasonLockTimeout,
			"interlock checks starved of sensor data")
		return false
	}
	m.log.Warnf("interlock: sensor snapshot unavailable (%d/%d), holding last status",
		m.misses, maxSnapshotMisses)
	return m.cached().AllPassed()
}

// ContinuousCheck reports whether the burn may continue. While nothing
// burns the full pass is skipped and its cadence timestamp is left
// alone, so the first active cycle always runs a fresh pass instead of
// trusting a cached one.
func (m *InterlockMonitor) ContinuousCheck(enabled, heatingActive, waterActive bool, now time.Time) bool {
	if !enabled {
		return true
	}
	snap, ok := m.store.Snapshot()
	if !ok {
		return m.snapshotMissed()
	}
	m.misses = 0

	if snap.EmergencyStop {
		m.log.Errorf("interlock: emergency stop engaged")
		return false
	}
	if snap.BoilerSupplyValid && snap.BoilerSupply.GreaterOrEqual(criticalBoilerTemp) {
		m.log.Errorf("interlock: boiler at %s°C, hard ceiling is %s°C",
			snap.BoilerSupply, criticalBoilerTemp)
		return false
	}
	if !snap.Fresh(now, interlockStale) {
		m.log.Errorf("interlock: sensor data older than %v", interlockStale)
		return false
	}

	if !heatingActive && !waterActive {
		return true
	}

	if now.Sub(m.lastFull) >= fullCheckInterval {
		st := m.FullCheck(snap, now)
		m.last.Store(&st)
		m.lastFull = now
		if !st.AllPassed() {
			m.log.Errorf("interlock: full check failed: %s", st.FailureReason())
		}
	}
	return m.cached().AllPassed()
}

// FullCheck evaluates every interlock condition against one snapshot.
// Pressure is advisory here: an unreadable pressure channel passes,
// because the validator already applied the configured policy at
// light-off and a spurious block mid-burn is worse than running on the
// remaining checks.
func (m *InterlockMonitor) FullCheck(snap models.SensorSnapshot, now time.Time) models.InterlockStatus {
	view := m.params.Snapshot()
	st := models.InterlockStatus{CheckedAt: now}

	st.NoEmergencyStop = !snap.EmergencyStop
	st.CommunicationOK = snap.CommOK
	st.TemperatureValid = snap.BoilerSupplyValid && snap.BoilerSupply.Valid()
	st.TemperatureInRange = st.TemperatureValid && snap.BoilerSupply.Less(view.MaxBoilerTemp)
	st.MinimumSensorsOK = snap.ValidSensorCount(now, view.SensorStale) >= view.MinSensors
	st.NoSystemErrors = m.relays.Desired() == m.relays.Mask() &&
		m.store.ConsecutiveReadTimeouts() == 0

	if snap.SystemPressureValid && snap.SystemPressure.Valid() {
		st.PressureInRange = snap.SystemPressure >= view.PressureMin &&
			snap.SystemPressure <= view.PressureMax
	} else {
		st.PressureInRange = true
	}
	return st
}
