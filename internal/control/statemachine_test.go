package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boilerctl/internal/models"
)

// TestMachine_StartSequence verifies the full cold start: Idle through
// pre-purge and ignition into RunningLow, with pump, fuel relay, runtime
// and event bookkeeping along the way.
func TestMachine_StartSequence(t *testing.T) {
	r := newRig(t)
	r.light(t)

	assert.True(t, r.relays.Mask().Get(models.RelayBurnerEnable))
	assert.False(t, r.relays.Mask().Get(models.RelayPowerBoost))
	assert.True(t, r.relays.Mask().Get(models.RelayHeatingPump))
	assert.Equal(t, models.ModeHeating, r.m.Mode())
	assert.Equal(t, models.PowerHalf, r.m.Power())

	c := r.rt.Counters(r.clock.now())
	assert.Equal(t, uint32(1), c.HeatingCycles)
	assert.Equal(t, uint32(1), c.IgnitionCount)
	assert.Positive(t, r.rt.ContinuousRun(r.clock.now().Add(time.Second)))

	assert.True(t, r.sink.has(models.EventBoilerEnabled))
	assert.True(t, r.sink.has(models.EventDemandChange))
	assert.GreaterOrEqual(t, r.sink.count(models.EventStateChange), 3)
}

// TestMachine_UnsafeConditionsBlockStart verifies a failing light-off
// validation keeps the machine in Idle with no fuel commanded, tick
// after tick.
func TestMachine_UnsafeConditionsBlockStart(t *testing.T) {
	r := newRig(t)
	r.m.Enable()
	require.NoError(t, r.m.SetDemand(heatingDemand()))

	// Pressure below the band fails validation but not the in-burn
	// critical checks, so the machine simply declines to start.
	r.store.snap.SystemPressure = 90
	for i := 0; i < 5; i++ {
		r.step(time.Second)
		require.Equal(t, models.StateIdle, r.m.State())
	}
	assert.False(t, r.relays.Mask().Get(models.RelayBurnerEnable))

	// Thermal shock spread blocks the same way.
	r.store.snap.SystemPressure = 150
	r.store.snap.BoilerSupply = 910
	r.store.snap.BoilerReturn = 600
	r.step(time.Second)
	assert.Equal(t, models.StateIdle, r.m.State())
}

// TestMachine_UnsafeDuringPrePurgeAbortsStart verifies conditions going
// bad during the purge cancel the start before any fuel is commanded.
func TestMachine_UnsafeDuringPrePurgeAbortsStart(t *testing.T) {
	r := newRig(t)
	r.m.Enable()
	require.NoError(t, r.m.SetDemand(heatingDemand()))
	r.m.tick()
	require.Equal(t, models.StatePrePurge, r.m.State())

	// Pressure leaves the operating band while the purge fan runs.
	r.store.snap.SystemPressure = 90
	r.step(time.Second)

	assert.Equal(t, models.StatePostPurge, r.m.State())
	assert.False(t, r.relays.Mask().Get(models.RelayBurnerEnable))
	assert.Equal(t, models.PowerOff, r.m.Power())
	assert.True(t, r.sink.has(models.EventSafety))
}

// TestMachine_DisabledOrIdleDemand verifies nothing starts without both
// the operator enable and an active demand.
func TestMachine_DisabledOrIdleDemand(t *testing.T) {
	r := newRig(t)

	require.NoError(t, r.m.SetDemand(heatingDemand()))
	r.step(time.Second)
	assert.Equal(t, models.StateIdle, r.m.State(), "demand without enable must not start")

	r.m.Enable()
	require.NoError(t, r.m.SetDemand(models.HeatDemand{}))
	r.step(time.Second)
	assert.Equal(t, models.StateIdle, r.m.State(), "enable without demand must not start")
}

// TestMachine_SetDemandValidation verifies malformed demands are rejected
// before they reach the loop.
func TestMachine_SetDemandValidation(t *testing.T) {
	r := newRig(t)

	err := r.m.SetDemand(models.HeatDemand{Active: true, Mode: models.ModeOff, Target: 500})
	assert.ErrorIs(t, err, ErrInvalidDemand)

	err = r.m.SetDemand(models.HeatDemand{Active: true, Mode: models.ModeHeating, Target: models.TempInvalid})
	assert.ErrorIs(t, err, ErrInvalidDemand)

	assert.NoError(t, r.m.SetDemand(models.HeatDemand{}))
}

// TestMachine_IgnitionRetriesThenLockout verifies three failed ignition
// attempts walk through re-purge cycles and end in a timed lockout with
// the alarm on and the pump overrun armed.
func TestMachine_IgnitionRetriesThenLockout(t *testing.T) {
	r := newRig(t)
	r.relays.rejectFuel = true

	r.m.Enable()
	require.NoError(t, r.m.SetDemand(heatingDemand()))
	r.m.tick()
	require.Equal(t, models.StatePrePurge, r.m.State())

	for attempt := 1; attempt <= maxIgnitionRetries; attempt++ {
		r.step(prePurgeTime)
		require.Equal(t, models.StateIgnition, r.m.State(), "attempt %d", attempt)
		r.step(ignitionTimeout)
		if attempt < maxIgnitionRetries {
			require.Equal(t, models.StatePrePurge, r.m.State(), "attempt %d must re-purge", attempt)
		}
	}

	require.Equal(t, models.StateLockout, r.m.State())
	assert.Equal(t, maxIgnitionRetries, r.m.IgnitionAttempts())
	assert.True(t, r.clock.now().Add(lockoutDuration).Equal(r.m.LockoutUntil()))
	assert.True(t, r.relays.Mask().Get(models.RelayAlarm))
	assert.True(t, r.sink.has(models.EventLockout))
	assert.Equal(t, pumpOverrun, r.pumps.OverrunRemaining(models.ModeHeating, r.clock.now()))

	c := r.rt.Counters(r.clock.now())
	assert.Equal(t, uint32(maxIgnitionRetries), c.IgnitionCount)
	assert.Equal(t, uint32(1), c.LockoutCount)
}

// TestMachine_LockoutTimedRelease verifies the lockout releases on its
// own after the hold time and the burner can then start again.
func TestMachine_LockoutTimedRelease(t *testing.T) {
	r := newRig(t)
	r.relays.rejectFuel = true
	r.m.Enable()
	require.NoError(t, r.m.SetDemand(heatingDemand()))
	r.m.tick()
	for r.m.State() != models.StateLockout {
		r.step(time.Second)
	}

	r.step(lockoutDuration - time.Second)
	require.Equal(t, models.StateLockout, r.m.State())

	r.step(time.Second)
	assert.Equal(t, models.StateIdle, r.m.State())
	assert.Zero(t, r.m.IgnitionAttempts())
	assert.False(t, r.relays.Mask().Get(models.RelayAlarm))
	assert.True(t, r.sink.has(models.EventRecovery))

	// With the fault gone the next start sequence succeeds.
	r.relays.rejectFuel = false
	require.NoError(t, r.m.SetDemand(heatingDemand()))
	r.step(time.Second)
	require.Equal(t, models.StatePrePurge, r.m.State())
	r.step(prePurgeTime)
	r.step(minIgnitionTime)
	assert.Equal(t, models.StateRunningLow, r.m.State())
}

// TestMachine_ResetLockoutEarly verifies the operator reset releases a
// lockout at once and is rejected in any other state.
func TestMachine_ResetLockoutEarly(t *testing.T) {
	r := newRig(t)
	assert.ErrorIs(t, r.m.ResetLockout(), ErrNotLockedOut)

	r.relays.rejectFuel = true
	r.m.Enable()
	require.NoError(t, r.m.SetDemand(heatingDemand()))
	r.m.tick()
	for r.m.State() != models.StateLockout {
		r.step(time.Second)
	}

	require.NoError(t, r.m.ResetLockout())
	assert.Equal(t, models.StateIdle, r.m.State())
	assert.True(t, r.m.LockoutUntil().IsZero())
}

// TestMachine_EStopWhileRunning verifies the stop input mid-burn drives
// the machine into Error through the failsafe path: fuel cut, pumps
// forced on, forensic record written with the pre-shutdown mask.
func TestMachine_EStopWhileRunning(t *testing.T) {
	r := newRig(t)
	r.light(t)

	r.store.snap.EmergencyStop = true
	r.step(time.Second)

	assert.Equal(t, models.StateError, r.m.State())
	assert.Equal(t, models.LevelEmergency, r.coord.Level())
	assert.Equal(t, models.PowerOff, r.m.Power())
	assert.False(t, r.relays.Mask().Get(models.RelayBurnerEnable))
	assert.True(t, r.relays.Mask().Get(models.RelayHeatingPump))
	assert.True(t, r.relays.Mask().Get(models.RelayWaterPump))
	assert.True(t, r.relays.Mask().Get(models.RelayAlarm))
	assert.True(t, r.sink.has(models.EventEmergencyStop))
	assert.Zero(t, r.rt.ContinuousRun(r.clock.now()))

	require.Len(t, r.emerg.records, 1)
	assert.True(t, r.emerg.records[0].HeatingActive,
		"record must show the burner as it was at the incident")

	// The machine stays pinned in Error on subsequent ticks.
	r.step(time.Second)
	assert.Equal(t, models.StateError, r.m.State())
}

// TestMachine_ErrorRecoveryFlow verifies the way back from an emergency:
// the dwell gate, the failsafe recovery requirement, and the final reset
// into Idle with the anti-cycling governor re-armed.
func TestMachine_ErrorRecoveryFlow(t *testing.T) {
	r := newRig(t)
	r.light(t)
	r.store.snap.EmergencyStop = true
	r.step(time.Second)
	require.Equal(t, models.StateError, r.m.State())

	assert.ErrorContains(t, r.m.ResetError(), "error state held")

	r.store.snap.EmergencyStop = false
	r.clock.advance(5 * time.Minute)
	r.refresh()

	assert.ErrorContains(t, r.m.ResetError(), "failsafe level")

	require.NoError(t, r.coord.AttemptRecovery())
	require.Equal(t, models.LevelWarning, r.coord.Level())

	require.NoError(t, r.m.ResetError())
	assert.Equal(t, models.StateIdle, r.m.State())
	assert.Equal(t, models.ModeOff, r.m.Mode())
	assert.False(t, r.relays.Mask().Get(models.RelayAlarm))
	assert.Positive(t, r.pumps.OverrunRemaining(models.ModeHeating, r.clock.now()))
	assert.Positive(t, r.pumps.OverrunRemaining(models.ModeWater, r.clock.now()))

	// The governor was reset: no relight until the minimum off time.
	r.step(time.Second)
	require.Equal(t, models.StateIdle, r.m.State())
	r.step(minOffTime)
	assert.Equal(t, models.StatePrePurge, r.m.State())
}

// TestMachine_RuntimeLimitForcesRest verifies a burn hitting the
// continuous runtime limit is stopped through the purge path.
func TestMachine_RuntimeLimitForcesRest(t *testing.T) {
	r := newRig(t)
	r.light(t)

	r.clock.advance(4*time.Hour + time.Second)
	r.refresh()
	require.NoError(t, r.m.SetDemand(heatingDemand()))
	r.m.tick()

	assert.Equal(t, models.StatePostPurge, r.m.State())
	assert.True(t, r.sink.has(models.EventSafety))
	assert.False(t, r.relays.Mask().Get(models.RelayBurnerEnable))
}

// TestMachine_MinimumBurnThenStop verifies a cleared demand is honored
// only after the minimum on time, then the burner purges and returns to
// Idle.
func TestMachine_MinimumBurnThenStop(t *testing.T) {
	r := newRig(t)
	r.light(t)

	require.NoError(t, r.m.SetDemand(models.HeatDemand{}))
	r.step(10 * time.Second)
	assert.Equal(t, models.StateRunningLow, r.m.State(), "stop must wait for the minimum burn")

	r.step(minOnTime)
	assert.Equal(t, models.StatePostPurge, r.m.State())
	assert.False(t, r.relays.Mask().Get(models.RelayBurnerEnable))

	r.step(90 * time.Second)
	assert.Equal(t, models.StateIdle, r.m.State())
}

// TestMachine_DemandExpiry verifies a demand that stops being refreshed
// expires and stops the burner.
func TestMachine_DemandExpiry(t *testing.T) {
	r := newRig(t)
	r.light(t)

	r.step(demandExpiry + time.Second)
	assert.Equal(t, models.StatePostPurge, r.m.State())
	assert.False(t, r.m.Demand().Active)
}

// TestMachine_PowerStepping verifies the half/full transitions: the
// governor gap delays the step in both directions and a hot supply
// forces half power regardless of the demand.
func TestMachine_PowerStepping(t *testing.T) {
	r := newRig(t)
	r.light(t)

	d := heatingDemand()
	d.HighPower = true
	require.NoError(t, r.m.SetDemand(d))

	r.step(time.Second)
	assert.Equal(t, models.StateRunningLow, r.m.State(), "step up must wait for the change gap")

	r.step(minPowerChangeGap)
	require.Equal(t, models.StateRunningHigh, r.m.State())
	assert.Equal(t, models.PowerFull, r.m.Power())
	assert.True(t, r.relays.Mask().Get(models.RelayPowerBoost))

	// A supply at the block threshold forces a step back down.
	r.store.snap.BoilerSupply = 805
	r.step(minPowerChangeGap)
	require.NoError(t, r.m.SetDemand(d))
	r.m.tick()
	assert.Equal(t, models.StateRunningLow, r.m.State())
	assert.Equal(t, models.PowerHalf, r.m.Power())
	assert.False(t, r.relays.Mask().Get(models.RelayPowerBoost))
}

// TestMachine_WaterPreemptsHeating verifies a water demand takes the
// burner from the heating circuit through the mode switch grace, with
// the valve moving to the tank and the heating pump left in overrun.
func TestMachine_WaterPreemptsHeating(t *testing.T) {
	r := newRig(t)
	r.light(t)

	require.NoError(t, r.m.SetDemand(models.HeatDemand{
		Active: true, Mode: models.ModeWater, Target: 550,
	}))
	r.step(time.Second)
	assert.Equal(t, models.StateRunningLow, r.m.State(), "switch must wait for the minimum burn")

	r.step(minOnTime)
	require.Equal(t, models.StateModeSwitching, r.m.State())
	assert.False(t, FlameActive(r.relays.Mask()), "fuel must be off through the switch")
	assert.True(t, r.relays.Mask().Get(models.RelayWaterPump))
	assert.True(t, r.relays.Mask().Get(models.RelayValve))

	r.step(modeSwitchGrace)
	require.Equal(t, models.StatePrePurge, r.m.State())
	assert.Equal(t, models.ModeWater, r.m.Mode())

	r.step(prePurgeTime)
	r.step(minIgnitionTime)
	require.Equal(t, models.StateRunningLow, r.m.State())
	assert.True(t, r.relays.Mask().Get(models.RelayWaterMode))
	assert.False(t, r.relays.Mask().Get(models.RelayBurnerEnable))
	assert.True(t, r.relays.Mask().Get(models.RelayHeatingPump), "heating pump rides out its overrun")

	c := r.rt.Counters(r.clock.now())
	assert.Equal(t, uint32(1), c.WaterCycles)
	assert.True(t, r.sink.has(models.EventModeChange))
}

// TestMachine_FlameLossStopsBurn verifies a fuel path dropping mid-burn
// is treated as flame loss and stops the burner through the purge.
func TestMachine_FlameLossStopsBurn(t *testing.T) {
	r := newRig(t)
	r.light(t)

	r.relays.mask = r.relays.mask.Set(models.RelayBurnerEnable, false)
	r.relays.desired = r.relays.desired.Set(models.RelayBurnerEnable, false)
	r.step(time.Second)

	assert.Equal(t, models.StatePostPurge, r.m.State())
	assert.True(t, r.sink.has(models.EventSafety))
	assert.Equal(t, models.PowerOff, r.m.Power())
}

// TestMachine_DisableStopsOrderly verifies the operator disable stops a
// burn through the purge path without waiting for the minimum burn, and
// a re-enable lights again.
func TestMachine_DisableStopsOrderly(t *testing.T) {
	r := newRig(t)
	r.light(t)

	r.m.Disable()
	r.step(time.Second)
	assert.Equal(t, models.StatePostPurge, r.m.State())
	assert.True(t, r.sink.has(models.EventBoilerDisabled))

	r.step(90 * time.Second)
	assert.Equal(t, models.StateIdle, r.m.State())

	r.m.Enable()
	r.step(time.Second)
	assert.Equal(t, models.StatePrePurge, r.m.State())
}

// TestMachine_EStopWhileIdle verifies the stop input forces the
// emergency posture even with no burn in progress.
func TestMachine_EStopWhileIdle(t *testing.T) {
	r := newRig(t)
	r.m.Enable()

	r.store.snap.EmergencyStop = true
	r.step(time.Second)

	assert.Equal(t, models.StateError, r.m.State())
	assert.True(t, r.relays.Mask().Get(models.RelayHeatingPump))
	assert.Equal(t, models.LevelEmergency, r.coord.Level())
}

// TestMachine_EmergencyShutdownIdempotent verifies repeated shutdown
// calls collapse into one posture change and one event.
func TestMachine_EmergencyShutdownIdempotent(t *testing.T) {
	r := newRig(t)
	r.light(t)

	r.m.EmergencyShutdown("first")
	r.m.EmergencyShutdown("second")

	assert.Equal(t, models.StateError, r.m.State())
	assert.Equal(t, 1, r.relays.shutdowns)
	assert.Equal(t, 1, r.sink.count(models.EventEmergencyStop))
}

// TestMachine_ResetErrorRequiresErrorState verifies the error reset is
// rejected outside the Error state.
func TestMachine_ResetErrorRequiresErrorState(t *testing.T) {
	r := newRig(t)
	assert.ErrorIs(t, r.m.ResetError(), ErrNotInError)
}
