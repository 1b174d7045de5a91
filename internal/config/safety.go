package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"boilerctl/internal/models"
)

// ErrOutOfRange is returned by every SafetyParams setter when a value
// falls outside its hard bounds. Out-of-range values are rejected, never
// clamped into the live system.
var ErrOutOfRange = errors.New("value out of range")

// Hard bounds for the runtime-tunable parameters. The bounds themselves
// are not configurable.
const (
	pumpDwellMin = 5 * time.Second
	pumpDwellMax = 60 * time.Second

	sensorStaleMin = 30 * time.Second
	sensorStaleMax = 5 * time.Minute

	postPurgeMin = 30 * time.Second
	postPurgeMax = 3 * time.Minute

	errorRecoveryMin = time.Minute
	errorRecoveryMax = 30 * time.Minute

	pidIntegralFloor models.Temperature = -5000 // -500.0°C
	pidIntegralCeil  models.Temperature = 5000  // +500.0°C

	maxBoilerTempLow  models.Temperature = 800  // 80.0°C
	maxBoilerTempHigh models.Temperature = 1200 // 120.0°C

	maxWaterTempLow  models.Temperature = 400 // 40.0°C
	maxWaterTempHigh models.Temperature = 900 // 90.0°C

	thermalShockLow  models.Temperature = 100 // 10.0°C
	thermalShockHigh models.Temperature = 500 // 50.0°C

	minSensorsLow  = 1
	minSensorsHigh = 5

	continuousRunMin = 30 * time.Minute
	continuousRunMax = 8 * time.Hour

	dailyRunMin = time.Hour
	dailyRunMax = 24 * time.Hour
)

// SafetyParams is the single live copy of the runtime-tunable safety
// parameters. Consumers read a View; the settings service mutates values
// through the typed setters, which enforce hard bounds. The deploy-time
// policy fields (missing-pressure handling, pressure band) are fixed at
// construction and expose no setters.
type SafetyParams struct {
	mu sync.RWMutex

	pumpDwell     time.Duration
	sensorStale   time.Duration
	postPurge     time.Duration
	errorRecovery time.Duration

	pidIntegralMin models.Temperature
	pidIntegralMax models.Temperature

	maxBoilerTemp models.Temperature
	maxWaterTemp  models.Temperature
	thermalShock  models.Temperature
	minSensors    int

	maxContinuousRun time.Duration
	maxDailyRun      time.Duration

	allowMissingPressure bool
	pressureMin          models.Pressure
	pressureMax          models.Pressure
}

// View is a consistent copy of every parameter, taken under one lock
// acquisition so a validator cycle never mixes old and new values.
type View struct {
	PumpDwell     time.Duration
	SensorStale   time.Duration
	PostPurge     time.Duration
	ErrorRecovery time.Duration

	PIDIntegralMin models.Temperature
	PIDIntegralMax models.Temperature

	MaxBoilerTemp models.Temperature
	MaxWaterTemp  models.Temperature
	ThermalShock  models.Temperature
	MinSensors    int

	MaxContinuousRun time.Duration
	MaxDailyRun      time.Duration

	AllowMissingPressure bool
	PressureMin          models.Pressure
	PressureMax          models.Pressure
}

// NewSafetyParams builds the store from the boot-time file values,
// pushing each one through the same validation the runtime setters use.
// A config file carrying an out-of-range value fails the boot.
func NewSafetyParams(fc SafetyFileConfig) (*SafetyParams, error) {
	p := &SafetyParams{
		allowMissingPressure: fc.AllowMissingPressure,
		pressureMin:          models.Pressure(fc.PressureMin),
		pressureMax:          models.Pressure(fc.PressureMax),
	}
	if p.pressureMin >= p.pressureMax || !p.pressureMin.Valid() || !p.pressureMax.Valid() {
		return nil, fmt.Errorf("%w: pressure band %v to %v", ErrOutOfRange, p.pressureMin, p.pressureMax)
	}
	steps := []func() error{
		func() error { return p.SetPumpDwell(fc.PumpDwell) },
		func() error { return p.SetSensorStale(fc.SensorStale) },
		func() error { return p.SetPostPurge(fc.PostPurge) },
		func() error { return p.SetErrorRecovery(fc.ErrorRecovery) },
		func() error {
			return p.SetPIDIntegralBounds(
				models.TempFromCelsius(fc.PIDIntegralMinC),
				models.TempFromCelsius(fc.PIDIntegralMaxC))
		},
		func() error { return p.SetMaxBoilerTemp(models.TempFromCelsius(fc.MaxBoilerTempC)) },
		func() error { return p.SetMaxWaterTemp(models.TempFromCelsius(fc.MaxWaterTempC)) },
		func() error { return p.SetThermalShock(models.TempFromCelsius(fc.ThermalShockC)) },
		func() error { return p.SetMinSensors(fc.MinSensors) },
		func() error { return p.SetRuntimeLimits(fc.MaxContinuousRun, fc.MaxDailyRun) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Snapshot returns a consistent copy of all parameters.
func (p *SafetyParams) Snapshot() View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return View{
		PumpDwell:            p.pumpDwell,
		SensorStale:          p.sensorStale,
		PostPurge:            p.postPurge,
		ErrorRecovery:        p.errorRecovery,
		PIDIntegralMin:       p.pidIntegralMin,
		PIDIntegralMax:       p.pidIntegralMax,
		MaxBoilerTemp:        p.maxBoilerTemp,
		MaxWaterTemp:         p.maxWaterTemp,
		ThermalShock:         p.thermalShock,
		MinSensors:           p.minSensors,
		MaxContinuousRun:     p.maxContinuousRun,
		MaxDailyRun:          p.maxDailyRun,
		AllowMissingPressure: p.allowMissingPressure,
		PressureMin:          p.pressureMin,
		PressureMax:          p.pressureMax,
	}
}

// SetPumpDwell updates the pump motor-protection dwell time.
func (p *SafetyParams) SetPumpDwell(d time.Duration) error {
	if d < pumpDwellMin || d > pumpDwellMax {
		return fmt.Errorf("%w: pump dwell %v (allowed %v to %v)", ErrOutOfRange, d, pumpDwellMin, pumpDwellMax)
	}
	p.mu.Lock()
	p.pumpDwell = d
	p.mu.Unlock()
	return nil
}

// SetSensorStale updates the validator staleness threshold.
func (p *SafetyParams) SetSensorStale(d time.Duration) error {
	if d < sensorStaleMin || d > sensorStaleMax {
		return fmt.Errorf("%w: sensor stale %v (allowed %v to %v)", ErrOutOfRange, d, sensorStaleMin, sensorStaleMax)
	}
	p.mu.Lock()
	p.sensorStale = d
	p.mu.Unlock()
	return nil
}

// SetPostPurge updates the post-purge fan run duration.
func (p *SafetyParams) SetPostPurge(d time.Duration) error {
	if d < postPurgeMin || d > postPurgeMax {
		return fmt.Errorf("%w: post purge %v (allowed %v to %v)", ErrOutOfRange, d, postPurgeMin, postPurgeMax)
	}
	p.mu.Lock()
	p.postPurge = d
	p.mu.Unlock()
	return nil
}

// SetErrorRecovery updates the minimum dwell in the Error state before a
// reset request is honored.
func (p *SafetyParams) SetErrorRecovery(d time.Duration) error {
	if d < errorRecoveryMin || d > errorRecoveryMax {
		return fmt.Errorf("%w: error recovery %v (allowed %v to %v)", ErrOutOfRange, d, errorRecoveryMin, errorRecoveryMax)
	}
	p.mu.Lock()
	p.errorRecovery = d
	p.mu.Unlock()
	return nil
}

// SetPIDIntegralBounds updates the anti-windup clamp. The lower bound must
// be at or below zero and the upper at or above zero so a freshly reset
// accumulator is always inside the clamp.
func (p *SafetyParams) SetPIDIntegralBounds(min, max models.Temperature) error {
	if !min.Valid() || min < pidIntegralFloor || min > 0 {
		return fmt.Errorf("%w: pid integral lower bound %v (allowed %v to 0.0)", ErrOutOfRange, min, pidIntegralFloor)
	}
	if !max.Valid() || max > pidIntegralCeil || max < 0 {
		return fmt.Errorf("%w: pid integral upper bound %v (allowed 0.0 to %v)", ErrOutOfRange, max, pidIntegralCeil)
	}
	p.mu.Lock()
	p.pidIntegralMin = min
	p.pidIntegralMax = max
	p.mu.Unlock()
	return nil
}

// SetMaxBoilerTemp updates the boiler overtemperature limit.
func (p *SafetyParams) SetMaxBoilerTemp(t models.Temperature) error {
	if !t.Valid() || t < maxBoilerTempLow || t > maxBoilerTempHigh {
		return fmt.Errorf("%w: max boiler temp %v (allowed %v to %v)", ErrOutOfRange, t, maxBoilerTempLow, maxBoilerTempHigh)
	}
	p.mu.Lock()
	p.maxBoilerTemp = t
	p.mu.Unlock()
	return nil
}

// SetMaxWaterTemp updates the hot-water tank overtemperature limit.
func (p *SafetyParams) SetMaxWaterTemp(t models.Temperature) error {
	if !t.Valid() || t < maxWaterTempLow || t > maxWaterTempHigh {
		return fmt.Errorf("%w: max water temp %v (allowed %v to %v)", ErrOutOfRange, t, maxWaterTempLow, maxWaterTempHigh)
	}
	p.mu.Lock()
	p.maxWaterTemp = t
	p.mu.Unlock()
	return nil
}

// SetThermalShock updates the supply/return differential limit.
func (p *SafetyParams) SetThermalShock(t models.Temperature) error {
	if !t.Valid() || t < thermalShockLow || t > thermalShockHigh {
		return fmt.Errorf("%w: thermal shock delta %v (allowed %v to %v)", ErrOutOfRange, t, thermalShockLow, thermalShockHigh)
	}
	p.mu.Lock()
	p.thermalShock = t
	p.mu.Unlock()
	return nil
}

// SetMinSensors updates the minimum count of valid sensors required for
// combustion.
func (p *SafetyParams) SetMinSensors(n int) error {
	if n < minSensorsLow || n > minSensorsHigh {
		return fmt.Errorf("%w: min sensors %d (allowed %d to %d)", ErrOutOfRange, n, minSensorsLow, minSensorsHigh)
	}
	p.mu.Lock()
	p.minSensors = n
	p.mu.Unlock()
	return nil
}

// SetRuntimeLimits updates the continuous and per-day burner runtime
// limits together; the daily limit can never be below the continuous one.
func (p *SafetyParams) SetRuntimeLimits(continuous, daily time.Duration) error {
	if continuous < continuousRunMin || continuous > continuousRunMax {
		return fmt.Errorf("%w: continuous runtime %v (allowed %v to %v)", ErrOutOfRange, continuous, continuousRunMin, continuousRunMax)
	}
	if daily < dailyRunMin || daily > dailyRunMax || daily < continuous {
		return fmt.Errorf("%w: daily runtime %v (allowed %v to %v, not below continuous)", ErrOutOfRange, daily, dailyRunMin, dailyRunMax)
	}
	p.mu.Lock()
	p.maxContinuousRun = continuous
	p.maxDailyRun = daily
	p.mu.Unlock()
	return nil
}
