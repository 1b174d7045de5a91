package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"boilerctl/internal/config"
	"boilerctl/internal/logger"
	"boilerctl/internal/models"
	"boilerctl/internal/repository"
)

// tuningLoopBoiler names the PID loop whose tuning the config API edits.
const tuningLoopBoiler = "boiler"

// Settings keys for runtime-changed values. Durations are stored in Go
// duration syntax, temperatures in decimal °C.
const (
	keyPumpDwell      = "pump_dwell"
	keySensorStale    = "sensor_stale"
	keyPostPurge      = "post_purge"
	keyErrorRecovery  = "error_recovery"
	keyPIDIntegralMin = "pid_integral_min_c"
	keyPIDIntegralMax = "pid_integral_max_c"
)

// SafetySettings is the read view of the tunable parameters plus the
// fixed safety limits for reference.
type SafetySettings struct {
	PumpDwell       string  `json:"pump_dwell"`
	SensorStale     string  `json:"sensor_stale"`
	PostPurge       string  `json:"post_purge"`
	ErrorRecovery   string  `json:"error_recovery"`
	PIDIntegralMinC float64 `json:"pid_integral_min_c"`
	PIDIntegralMaxC float64 `json:"pid_integral_max_c"`

	Tuning models.PIDTuning `json:"tuning"`

	MaxBoilerTempC   float64 `json:"max_boiler_temp_c"`
	MaxWaterTempC    float64 `json:"max_water_temp_c"`
	ThermalShockC    float64 `json:"thermal_shock_c"`
	MinSensors       int     `json:"min_sensors"`
	MaxContinuousRun string  `json:"max_continuous_run"`
	MaxDailyRun      string  `json:"max_daily_run"`
}

// SafetyUpdate carries the editable subset. Empty and nil fields keep
// the current value. Durations use Go syntax, e.g. "45s" or "2m".
type SafetyUpdate struct {
	PumpDwell       string   `json:"pump_dwell,omitempty"`
	SensorStale     string   `json:"sensor_stale,omitempty"`
	PostPurge       string   `json:"post_purge,omitempty"`
	ErrorRecovery   string   `json:"error_recovery,omitempty"`
	PIDIntegralMinC *float64 `json:"pid_integral_min_c,omitempty"`
	PIDIntegralMaxC *float64 `json:"pid_integral_max_c,omitempty"`

	Tuning *models.PIDTuning `json:"tuning,omitempty"`
}

// SafetyConfigService edits the runtime-tunable safety parameters.
// Accepted values go through the same range validation as the boot-time
// config and are persisted so they survive restarts.
type SafetyConfigService struct {
	params   *config.SafetyParams
	tuner    Tuner
	settings repository.SettingsRepo
	tuning   repository.TuningRepo
	events   Recorder
	log      *logger.Logger
}

func NewSafetyConfigService(core Core, settings repository.SettingsRepo, tuning repository.TuningRepo, events Recorder, log *logger.Logger) *SafetyConfigService {
	return &SafetyConfigService{
		params:   core.Safety,
		tuner:    core.Tuner,
		settings: settings,
		tuning:   tuning,
		events:   events,
		log:      log,
	}
}

// View reports the current parameters.
func (s *SafetyConfigService) View() SafetySettings {
	v := s.params.Snapshot()
	out := SafetySettings{
		PumpDwell:        v.PumpDwell.String(),
		SensorStale:      v.SensorStale.String(),
		PostPurge:        v.PostPurge.String(),
		ErrorRecovery:    v.ErrorRecovery.String(),
		PIDIntegralMinC:  v.PIDIntegralMin.Celsius(),
		PIDIntegralMaxC:  v.PIDIntegralMax.Celsius(),
		MaxBoilerTempC:   v.MaxBoilerTemp.Celsius(),
		MaxWaterTempC:    v.MaxWaterTemp.Celsius(),
		ThermalShockC:    v.ThermalShock.Celsius(),
		MinSensors:       v.MinSensors,
		MaxContinuousRun: v.MaxContinuousRun.String(),
		MaxDailyRun:      v.MaxDailyRun.String(),
	}
	if t, err := s.tuner.Tuning(); err == nil {
		out.Tuning = t
	}
	return out
}

// Update applies the provided fields in place. A value that fails
// validation rejects the whole request; fields before it may already
// have been applied, so callers should re-read after an error.
func (s *SafetyConfigService) Update(ctx context.Context, u SafetyUpdate) error {
	type change struct {
		key, value string
	}
	var changes []change

	applyDuration := func(raw, key string, set func(time.Duration) error) error {
		if raw == "" {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%w: %s %q", config.ErrOutOfRange, key, raw)
		}
		if err := set(d); err != nil {
			return err
		}
		changes = append(changes, change{key, d.String()})
		return nil
	}

	if err := applyDuration(u.PumpDwell, keyPumpDwell, s.params.SetPumpDwell); err != nil {
		return err
	}
	if err := applyDuration(u.SensorStale, keySensorStale, s.params.SetSensorStale); err != nil {
		return err
	}
	if err := applyDuration(u.PostPurge, keyPostPurge, s.params.SetPostPurge); err != nil {
		return err
	}
	if err := applyDuration(u.ErrorRecovery, keyErrorRecovery, s.params.SetErrorRecovery); err != nil {
		return err
	}

	if u.PIDIntegralMinC != nil || u.PIDIntegralMaxC != nil {
		v := s.params.Snapshot()
		lo, hi := v.PIDIntegralMin, v.PIDIntegralMax
		if u.PIDIntegralMinC != nil {
			lo = models.TempFromCelsius(*u.PIDIntegralMinC)
		}
		if u.PIDIntegralMaxC != nil {
			hi = models.TempFromCelsius(*u.PIDIntegralMaxC)
		}
		if err := s.params.SetPIDIntegralBounds(lo, hi); err != nil {
			return err
		}
		changes = append(changes,
			change{keyPIDIntegralMin, strconv.FormatFloat(lo.Celsius(), 'f', 1, 64)},
			change{keyPIDIntegralMax, strconv.FormatFloat(hi.Celsius(), 'f', 1, 64)},
		)
	}

	if u.Tuning != nil {
		if err := s.tuner.SetTuning(*u.Tuning); err != nil {
			return err
		}
		if err := s.tuning.Save(ctx, tuningLoopBoiler, *u.Tuning); err != nil {
			s.log.Errorf("persist %s tuning: %v", tuningLoopBoiler, err)
		}
	}

	if len(changes) == 0 && u.Tuning == nil {
		return nil
	}

	parts := make([]string, 0, len(changes)+1)
	for _, c := range changes {
		if err := s.settings.Set(ctx, c.key, c.value); err != nil {
			s.log.Errorf("persist setting %s: %v", c.key, err)
		}
		parts = append(parts, c.key+"="+c.value)
	}
	if u.Tuning != nil {
		parts = append(parts, "pid tuning")
	}
	s.events.Record(models.EventConfigChange, "safety settings changed: "+strings.Join(parts, ", "))
	return nil
}

// Restore re-applies settings persisted by previous runs over the file
// defaults. Unknown keys and out-of-range values are skipped with a
// warning so one stale row cannot block startup.
func (s *SafetyConfigService) Restore(ctx context.Context) error {
	stored, err := s.settings.All(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	for key, value := range stored {
		if err := s.applyStored(key, value); err != nil {
			s.log.Warnf("stored setting %s=%q: %v", key, value, err)
		}
	}
	if t, found, err := s.tuning.Load(ctx, tuningLoopBoiler); err != nil {
		s.log.Warnf("load %s tuning: %v", tuningLoopBoiler, err)
	} else if found {
		if err := s.tuner.SetTuning(t); err != nil {
			s.log.Warnf("restore %s tuning: %v", tuningLoopBoiler, err)
		}
	}
	return nil
}

func (s *SafetyConfigService) applyStored(key, value string) error {
	switch key {
	case keyPumpDwell, keySensorStale, keyPostPurge, keyErrorRecovery:
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		switch key {
		case keyPumpDwell:
			return s.params.SetPumpDwell(d)
		case keySensorStale:
			return s.params.SetSensorStale(d)
		case keyPostPurge:
			return s.params.SetPostPurge(d)
		default:
			return s.params.SetErrorRecovery(d)
		}
	case keyPIDIntegralMin, keyPIDIntegralMax:
		c, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		v := s.params.Snapshot()
		lo, hi := v.PIDIntegralMin, v.PIDIntegralMax
		if key == keyPIDIntegralMin {
			lo = models.TempFromCelsius(c)
		} else {
			hi = models.TempFromCelsius(c)
		}
		return s.params.SetPIDIntegralBounds(lo, hi)
	}
	return fmt.Errorf("unknown key")
}
