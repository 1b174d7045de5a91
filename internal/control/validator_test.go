package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"boilerctl/internal/config"
	"boilerctl/internal/models"
)

// stubRuntime feeds fixed runtime figures into the validator.
type stubRuntime struct {
	cont  time.Duration
	daily time.Duration
}

func (s stubRuntime) ContinuousRun(time.Time) time.Duration { return s.cont }
func (s stubRuntime) DailyRun(time.Time) time.Duration      { return s.daily }

func testValidator(t *testing.T, rt RuntimeSource) (*Validator, *fakeStore, *fakeClock) {
	t.Helper()
	clock := newClock()
	store := &fakeStore{}
	store.healthy(clock.now())
	return NewValidator(testParams(t), rt, testLog()), store, clock
}

// TestValidator_AllClear verifies a healthy snapshot with idle runtime
// produces the safe outcome.
func TestValidator_AllClear(t *testing.T) {
	v, store, clock := testValidator(t, stubRuntime{})
	out := v.Validate(store.snap, clock.now(), false)
	assert.Equal(t, models.SafeToOperate, out)
	assert.True(t, out.Safe())
}

// TestValidator_EmergencyStopFirst verifies the stop input wins over
// every other failing condition.
func TestValidator_EmergencyStopFirst(t *testing.T) {
	v, store, clock := testValidator(t, stubRuntime{cont: 10 * time.Hour})
	store.snap.EmergencyStop = true
	store.snap.BoilerSupply = 1200
	store.snap.SystemPressure = 20

	out := v.Validate(store.snap, clock.now(), false)
	assert.Equal(t, models.EmergencyStopActive, out)
}

// TestValidator_InsufficientSensors verifies combustion is refused below
// the minimum valid sensor population, and that staleness zeroes the
// count outright.
func TestValidator_InsufficientSensors(t *testing.T) {
	v, store, clock := testValidator(t, stubRuntime{})
	store.snap.BoilerReturnValid = false
	store.snap.TankTempValid = false
	store.snap.OutsideTempValid = false
	store.snap.InsideTempValid = false

	assert.Equal(t, models.InsufficientSensors, v.Validate(store.snap, clock.now(), false))

	store.healthy(clock.now())
	clock.advance(2 * time.Minute)
	assert.Equal(t, models.InsufficientSensors, v.Validate(store.snap, clock.now(), false),
		"stale data must invalidate all channels")
}

// TestValidator_BoilerOvertempInclusive verifies the boiler limit blocks
// at exactly the configured value, on the supply and the return line.
func TestValidator_BoilerOvertempInclusive(t *testing.T) {
	v, store, clock := testValidator(t, stubRuntime{})

	store.snap.BoilerSupply = 1099
	store.snap.BoilerReturn = 900
	assert.Equal(t, models.SafeToOperate, v.Validate(store.snap, clock.now(), false))

	store.snap.BoilerSupply = 1100
	assert.Equal(t, models.TemperatureExceeded, v.Validate(store.snap, clock.now(), false))

	store.healthy(clock.now())
	store.snap.BoilerReturn = 1100
	assert.Equal(t, models.TemperatureExceeded, v.Validate(store.snap, clock.now(), false))
}

// TestValidator_TankLimitOnlyForWater verifies a hot tank blocks the
// water circuit but not space heating.
func TestValidator_TankLimitOnlyForWater(t *testing.T) {
	v, store, clock := testValidator(t, stubRuntime{})
	store.snap.TankTemp = 660

	assert.Equal(t, models.TemperatureExceeded, v.Validate(store.snap, clock.now(), true))
	assert.Equal(t, models.SafeToOperate, v.Validate(store.snap, clock.now(), false))
}

// TestValidator_RuntimeLimits verifies the continuous and daily limits
// block strictly beyond the configured values.
func TestValidator_RuntimeLimits(t *testing.T) {
	_, store, clock := testValidator(t, stubRuntime{})

	atLimit := NewValidator(testParams(t), stubRuntime{cont: 4 * time.Hour}, testLog())
	assert.Equal(t, models.SafeToOperate, atLimit.Validate(store.snap, clock.now(), false))

	over := NewValidator(testParams(t), stubRuntime{cont: 4*time.Hour + time.Second}, testLog())
	assert.Equal(t, models.RuntimeExceeded, over.Validate(store.snap, clock.now(), false))

	daily := NewValidator(testParams(t), stubRuntime{daily: 17 * time.Hour}, testLog())
	assert.Equal(t, models.RuntimeExceeded, daily.Validate(store.snap, clock.now(), false))
}

// TestValidator_PressureBand verifies readings outside the operating band
// block combustion.
func TestValidator_PressureBand(t *testing.T) {
	v, store, clock := testValidator(t, stubRuntime{})

	store.snap.SystemPressure = 90
	assert.Equal(t, models.PressureExceeded, v.Validate(store.snap, clock.now(), false))

	store.snap.SystemPressure = 360
	assert.Equal(t, models.PressureExceeded, v.Validate(store.snap, clock.now(), false))

	store.snap.SystemPressure = 100
	assert.Equal(t, models.SafeToOperate, v.Validate(store.snap, clock.now(), false))
}

// TestValidator_MissingPressureFailClosed verifies the default policy
// blocks combustion when no usable pressure reading exists.
func TestValidator_MissingPressureFailClosed(t *testing.T) {
	v, store, clock := testValidator(t, stubRuntime{})
	store.snap.SystemPressureValid = false
	assert.Equal(t, models.SensorFailure, v.Validate(store.snap, clock.now(), false))
}

// TestValidator_MissingPressureFailOpen verifies the opt-in policy
// permits combustion without a pressure reading.
func TestValidator_MissingPressureFailOpen(t *testing.T) {
	params := testParamsWith(t, func(fc *config.SafetyFileConfig) {
		fc.AllowMissingPressure = true
	})
	v := NewValidator(params, stubRuntime{}, testLog())

	clock := newClock()
	store := &fakeStore{}
	store.healthy(clock.now())
	store.snap.SystemPressureValid = false

	assert.Equal(t, models.SafeToOperate, v.Validate(store.snap, clock.now(), false))
}

// TestValidator_ThermalShock verifies the supply/return spread check: a
// spread at the limit passes, one beyond it blocks.
func TestValidator_ThermalShock(t *testing.T) {
	v, store, clock := testValidator(t, stubRuntime{})

	store.snap.BoilerSupply = 895
	store.snap.BoilerReturn = 600
	assert.Equal(t, models.SafeToOperate, v.Validate(store.snap, clock.now(), false),
		"29.5°C spread is inside the 30.0°C limit")

	store.snap.BoilerSupply = 910
	assert.Equal(t, models.ThermalShockRisk, v.Validate(store.snap, clock.now(), false),
		"31.0°C spread must block")
}
