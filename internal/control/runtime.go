package control

import (
	"context"
	"sync"
	"time"

	"boilerctl/internal/logger"
	"boilerctl/internal/models"
	"boilerctl/internal/repository"
)

// dailyResetPeriod is the rolling window for the per-day burner runtime
// limit.
const dailyResetPeriod = 24 * time.Hour

// RuntimeTracker accumulates burner runtime for the validator's limit
// checks and carries the lifetime service counters across restarts.
// Critical sections are short and never span I/O, so a plain mutex is
// enough here; the periodic persist copies the counters under the lock
// and writes outside it.
type RuntimeTracker struct {
	log  *logger.Logger
	repo repository.CounterRepo

	mu sync.Mutex

	burning   bool
	burnStart time.Time

	dayStart time.Time
	dayAccum time.Duration

	// Lifetime values loaded at boot; this boot's contribution is added
	// on top when reading.
	baseTotal  time.Duration
	baseBurner time.Duration
	burnAccum  time.Duration
	counters   models.RuntimeCounters
	bootAt     time.Time

	clock func() time.Time
}

// NewRuntimeTracker builds the tracker and loads the persisted lifetime
// counters. A missing row means a fresh install and starts from zero; a
// failing load is logged and also starts from zero rather than blocking
// boot.
func NewRuntimeTracker(ctx context.Context, repo repository.CounterRepo, log *logger.Logger) *RuntimeTracker {
	t := &RuntimeTracker{
		log:   log,
		repo:  repo,
		clock: time.Now,
	}
	now := t.clock()
	t.bootAt = now
	t.dayStart = now

	loaded, err := repo.Load(ctx)
	if err != nil {
		log.Errorf("runtime: loading counters failed, starting from zero: %v", err)
	} else {
		t.baseTotal = loaded.TotalRuntime
		t.baseBurner = loaded.BurnerRuntime
		t.counters = loaded
	}
	t.counters.LastBoot = now
	return t
}

// RecordBurnerStart marks the beginning of a combustion interval.
func (t *RuntimeTracker) RecordBurnerStart(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.burning {
		return
	}
	t.burning = true
	t.burnStart = now
}

// RecordBurnerStop closes the current combustion interval and folds it
// into the daily and lifetime accumulators.
func (t *RuntimeTracker) RecordBurnerStop(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.burning {
		return
	}
	t.burning = false
	seg := now.Sub(t.burnStart)
	if seg < 0 {
		seg = 0
	}
	t.rollDayLocked(now)
	t.dayAccum += seg
	t.burnAccum += seg
}

// ContinuousRun returns the length of the combustion interval currently
// in progress, zero when the burner is off.
func (t *RuntimeTracker) ContinuousRun(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.burning {
		return 0
	}
	d := now.Sub(t.burnStart)
	if d < 0 {
		return 0
	}
	return d
}

// DailyRun returns burner runtime accumulated in the current rolling
// 24 hour window, including the interval in progress.
func (t *RuntimeTracker) DailyRun(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollDayLocked(now)
	d := t.dayAccum
	if t.burning {
		if seg := now.Sub(t.burnStart); seg > 0 {
			d += seg
		}
	}
	return d
}

// rollDayLocked resets the daily accumulator when the window has
// elapsed. An in-progress burn keeps counting from its own start, so a
// burner running across the boundary is not forgiven its earlier hours
// until it actually stops.
func (t *RuntimeTracker) rollDayLocked(now time.Time) {
	for now.Sub(t.dayStart) >= dailyResetPeriod {
		t.dayStart = t.dayStart.Add(dailyResetPeriod)
		t.dayAccum = 0
	}
}

// IncHeatingCycle counts one completed heating ignition.
func (t *RuntimeTracker) IncHeatingCycle() {
	t.mu.Lock()
	t.counters.HeatingCycles++
	t.mu.Unlock()
}

// IncWaterCycle counts one completed water-heating ignition.
func (t *RuntimeTracker) IncWaterCycle() {
	t.mu.Lock()
	t.counters.WaterCycles++
	t.mu.Unlock()
}

// IncHeatingPumpStart counts one heating pump off-to-on transition.
func (t *RuntimeTracker) IncHeatingPumpStart() {
	t.mu.Lock()
	t.counters.HeatingPumpStarts++
	t.mu.Unlock()
}

// IncWaterPumpStart counts one water pump off-to-on transition.
func (t *RuntimeTracker) IncWaterPumpStart() {
	t.mu.Lock()
	t.counters.WaterPumpStarts++
	t.mu.Unlock()
}

// IncIgnition counts one ignition attempt.
func (t *RuntimeTracker) IncIgnition() {
	t.mu.Lock()
	t.counters.IgnitionCount++
	t.mu.Unlock()
}

// IncLockout counts one entry into the lockout state.
func (t *RuntimeTracker) IncLockout() {
	t.mu.Lock()
	t.counters.LockoutCount++
	t.mu.Unlock()
}

// IncEmergencyStop counts one escalation to Critical or above.
func (t *RuntimeTracker) IncEmergencyStop() {
	t.mu.Lock()
	t.counters.EmergencyStops++
	t.mu.Unlock()
}

// Counters returns the lifetime counters including this boot's
// contribution up to now.
func (t *RuntimeTracker) Counters(now time.Time) models.RuntimeCounters {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.counters
	up := now.Sub(t.bootAt)
	if up < 0 {
		up = 0
	}
	c.TotalRuntime = t.baseTotal + up
	c.BurnerRuntime = t.baseBurner + t.burnAccum
	if t.burning {
		if seg := now.Sub(t.burnStart); seg > 0 {
			c.BurnerRuntime += seg
		}
	}
	return c
}

// Run persists the counters on the given period until the context ends,
// with a final save on the way out so a clean shutdown loses nothing.
func (t *RuntimeTracker) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.persist(context.Background())
			return
		case <-ticker.C:
			t.persist(ctx)
		}
	}
}

func (t *RuntimeTracker) persist(ctx context.Context) {
	c := t.Counters(t.clock())
	saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := t.repo.Save(saveCtx, c); err != nil {
		t.log.Errorf("runtime: persisting counters failed: %v", err)
	}
}
