package control

import (
	"sync"
	"time"

	"boilerctl/internal/config"
	"boilerctl/internal/logger"
	"boilerctl/internal/models"
)

// RuntimeSource supplies the burner runtime figures the validator holds
// against the configured limits.
type RuntimeSource interface {
	ContinuousRun(now time.Time) time.Duration
	DailyRun(now time.Time) time.Duration
}

// Validator runs the ordered pre-combustion safety checks. The order is
// fixed: the cheapest and most severe conditions fire first, and exactly
// one outcome is produced per evaluation. The same evaluation gates both
// starting the burner and keeping it lit.
type Validator struct {
	log     *logger.Logger
	params  *config.SafetyParams
	runtime RuntimeSource

	interlockOnce sync.Once
}

func NewValidator(params *config.SafetyParams, runtime RuntimeSource, log *logger.Logger) *Validator {
	return &Validator{
		log:     log,
		params:  params,
		runtime: runtime,
	}
}

// Validate evaluates every check against one snapshot and one parameter
// view, so a concurrent settings change can never mix old and new limits
// within a single evaluation.
func (v *Validator) Validate(snap models.SensorSnapshot, now time.Time, waterMode bool) models.ValidationOutcome {
	view := v.params.Snapshot()

	// 1. Emergency stop input.
	if snap.EmergencyStop {
		v.log.Errorf("validator: emergency stop engaged")
		return models.EmergencyStopActive
	}

	// 2. Minimum number of valid, fresh, plausible sensors.
	if n := snap.ValidSensorCount(now, view.SensorStale); n < view.MinSensors {
		v.log.Errorf("validator: %d valid sensors, %d required", n, view.MinSensors)
		return models.InsufficientSensors
	}

	// 3. Boiler overtemperature, inclusive at the limit, on both the
	// supply and the return line.
	if snap.BoilerSupplyValid && snap.BoilerSupply.GreaterOrEqual(view.MaxBoilerTemp) {
		v.log.Errorf("validator: boiler supply %s°C at or above limit %s°C",
			snap.BoilerSupply, view.MaxBoilerTemp)
		return models.TemperatureExceeded
	}
	if snap.BoilerReturnValid && snap.BoilerReturn.GreaterOrEqual(view.MaxBoilerTemp) {
		v.log.Errorf("validator: boiler return %s°C at or above limit %s°C",
			snap.BoilerReturn, view.MaxBoilerTemp)
		return models.TemperatureExceeded
	}

	// 4. Tank overtemperature applies only while serving the water
	// circuit; a hot tank is no reason to refuse space heating.
	if waterMode && snap.TankTempValid && snap.TankTemp.GreaterOrEqual(view.MaxWaterTemp) {
		v.log.Errorf("validator: tank %s°C at or above limit %s°C", snap.TankTemp, view.MaxWaterTemp)
		return models.TemperatureExceeded
	}

	// 5. Continuous and rolling-daily runtime limits.
	if run := v.runtime.ContinuousRun(now); run > view.MaxContinuousRun {
		v.log.Errorf("validator: continuous runtime %v exceeds limit %v", run, view.MaxContinuousRun)
		return models.RuntimeExceeded
	}
	if run := v.runtime.DailyRun(now); run > view.MaxDailyRun {
		v.log.Errorf("validator: daily runtime %v exceeds limit %v", run, view.MaxDailyRun)
		return models.RuntimeExceeded
	}

	// 6. System pressure inside the operating band. With no usable
	// reading the deploy-time policy decides: fail closed blocks
	// combustion, fail open permits it with a warning on every pass.
	if snap.SystemPressureValid && snap.SystemPressure.Valid() {
		if snap.SystemPressure < view.PressureMin || snap.SystemPressure > view.PressureMax {
			v.log.Errorf("validator: pressure %s bar outside band %s to %s",
				snap.SystemPressure, view.PressureMin, view.PressureMax)
			return models.PressureExceeded
		}
	} else if view.AllowMissingPressure {
		v.log.Warnf("validator: no pressure reading, combustion permitted by policy")
	} else {
		v.log.Errorf("validator: no pressure reading, combustion blocked by policy")
		return models.SensorFailure
	}

	// 7. Hardware interlock circuit. No interlock input is wired on the
	// current board revision, so this boundary always passes; wiring it
	// later only touches this function.
	if !v.hardwareInterlocksClosed() {
		v.log.Errorf("validator: hardware interlock open")
		return models.HardwareInterlockOpen
	}

	// 8. Thermal shock: cold return water meeting a hot block. Checked
	// last because it blocks rather than indicates immediate danger.
	if snap.BoilerSupplyValid && snap.BoilerReturnValid {
		diff := snap.BoilerSupply.Sub(snap.BoilerReturn)
		if diff.Greater(view.ThermalShock) {
			v.log.Warnf("validator: thermal shock risk, supply %s return %s diff %s limit %s",
				snap.BoilerSupply, snap.BoilerReturn, diff, view.ThermalShock)
			return models.ThermalShockRisk
		}
	}

	return models.SafeToOperate
}

func (v *Validator) hardwareInterlocksClosed() bool {
	v.interlockOnce.Do(func() {
		v.log.Warnf("validator: no hardware interlock input wired, software checks only")
	})
	return true
}
