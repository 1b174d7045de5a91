package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"boilerctl/internal/logger"
	"boilerctl/internal/models"
	"boilerctl/internal/repository"
)

// Circuit names accepted from the API.
const (
	CircuitHeating = "heating"
	CircuitWater   = "water"
)

// waterChargeSpread sets how far below a commanded tank target the
// charge re-arm threshold sits when the API supplies a single target.
const waterChargeSpread = models.Temperature(200) // 20 °C

// Posture labels stored in the state row.
const (
	postureOff     = "OFF"
	postureHeating = "HEATING"
	postureWater   = "WATER"
	postureBoth    = "BOTH"
)

var (
	ErrUnknownCircuit = errors.New("unknown circuit: must be heating or water")
	ErrUnknownPower   = errors.New("unknown power level: must be auto, half, or full")
)

// DemandParams is one operator demand command.
type DemandParams struct {
	Circuit string  // "heating" | "water"
	Enabled bool    // serve this circuit
	TargetC float64 // new setpoint in °C; zero keeps the current one
	Power   string  // "auto" | "half" | "full"; empty keeps the current preference
}

// BoilerService translates operator commands into regulator and state
// machine calls. Every accepted command also persists the resulting
// posture so a restart resumes it.
type BoilerService struct {
	burner    BurnerControl
	regulator Regulation
	failsafe  FailsafeStatus
	stateRepo repository.StateRepo
	log       *logger.Logger
}

func NewBoilerService(core Core, stateRepo repository.StateRepo, log *logger.Logger) *BoilerService {
	return &BoilerService{
		burner:    core.Burner,
		regulator: core.Regulator,
		failsafe:  core.Failsafe,
		stateRepo: stateRepo,
		log:       log,
	}
}

// Enable allows combustion. The burner does not light until a circuit
// raises demand.
func (s *BoilerService) Enable(ctx context.Context) error {
	s.burner.Enable()
	s.persistPosture(ctx)
	return nil
}

// Disable stops combustion through the normal purge path. Circuit
// setpoints are kept for the next enable.
func (s *BoilerService) Disable(ctx context.Context) error {
	s.burner.Disable()
	s.persistPosture(ctx)
	return nil
}

// SetDemand applies one demand command: circuit enablement, an optional
// new setpoint, and an optional power preference. All changes land in
// the regulator, whose next cycle folds them into the single demand
// update the state machine consumes. Validation happens before any
// field is applied, so a rejected command changes nothing.
func (s *BoilerService) SetDemand(ctx context.Context, p DemandParams) error {
	circuit := strings.ToLower(strings.TrimSpace(p.Circuit))
	if circuit != CircuitHeating && circuit != CircuitWater {
		return fmt.Errorf("%w: %q", ErrUnknownCircuit, p.Circuit)
	}

	power := models.PowerAuto
	havePower := strings.TrimSpace(p.Power) != ""
	if havePower {
		parsed, err := parsePowerLevel(p.Power)
		if err != nil {
			return err
		}
		power = parsed
	}

	if circuit == CircuitHeating {
		if p.TargetC != 0 {
			if err := s.regulator.SetHeatingTarget(models.TempFromCelsius(p.TargetC)); err != nil {
				return err
			}
		}
		s.regulator.EnableHeating(p.Enabled)
	} else {
		if p.TargetC != 0 {
			high := models.TempFromCelsius(p.TargetC)
			if err := s.regulator.SetWaterBand(high-waterChargeSpread, high); err != nil {
				return err
			}
		}
		s.regulator.EnableWater(p.Enabled)
	}

	if havePower {
		if err := s.regulator.SetPowerPreference(power); err != nil {
			return err
		}
	}

	s.persistPosture(ctx)
	return nil
}

// ResetLockout releases an ignition lockout ahead of its timer.
func (s *BoilerService) ResetLockout(_ context.Context) error {
	return s.burner.ResetLockout()
}

// Recover walks the system back from a latched fault: first the
// failsafe level, then the burner error state if one is held. Both
// steps enforce their own dwell and cause-gone checks.
func (s *BoilerService) Recover(_ context.Context) error {
	if err := s.failsafe.AttemptRecovery(); err != nil {
		return err
	}
	if s.burner.State() == models.StateError {
		return s.burner.ResetError()
	}
	return nil
}

// RestoreState re-applies the posture persisted by the previous run. A
// zero row (first boot) applies nothing. Invalid stored values are
// skipped with a warning so one bad field cannot block startup.
func (s *BoilerService) RestoreState(ctx context.Context) error {
	st, err := s.stateRepo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load boiler state: %w", err)
	}
	if st.UpdatedAt.IsZero() {
		return nil
	}

	if st.TargetTenths > 0 {
		if err := s.regulator.SetHeatingTarget(models.Temperature(st.TargetTenths)); err != nil {
			s.log.Warnf("restore heating target %v: %v", models.Temperature(st.TargetTenths), err)
		}
	}
	if st.Power != "" {
		lvl, err := parsePowerLevel(st.Power)
		if err != nil {
			s.log.Warnf("restore power preference: %v", err)
		} else if err := s.regulator.SetPowerPreference(lvl); err != nil {
			s.log.Warnf("restore power preference %s: %v", st.Power, err)
		}
	}
	switch st.Mode {
	case postureBoth:
		s.regulator.EnableHeating(true)
		s.regulator.EnableWater(true)
	case postureHeating:
		s.regulator.EnableHeating(true)
	case postureWater:
		s.regulator.EnableWater(true)
	case postureOff, "":
	default:
		s.log.Warnf("restore circuits: unknown posture %q", st.Mode)
	}
	if st.Enabled {
		s.burner.Enable()
	}
	s.log.Infof("restored boiler posture from %v: enabled=%v circuits=%s power=%s",
		st.UpdatedAt, st.Enabled, st.Mode, st.Power)
	return nil
}

// persistPosture saves the commanded posture for restart resume. The
// command has already been applied to the live core, so a storage
// failure is logged rather than returned.
func (s *BoilerService) persistPosture(ctx context.Context) {
	st := models.StatePersisted{
		Enabled:      s.burner.Enabled(),
		Mode:         circuitsLabel(s.regulator.HeatingEnabled(), s.regulator.WaterEnabled()),
		Power:        s.regulator.PowerPreference().String(),
		TargetTenths: int16(s.regulator.HeatingTarget()),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.stateRepo.Save(ctx, st); err != nil {
		s.log.Errorf("persist boiler posture: %v", err)
	}
}

func circuitsLabel(heating, water bool) string {
	switch {
	case heating && water:
		return postureBoth
	case heating:
		return postureHeating
	case water:
		return postureWater
	}
	return postureOff
}

func parsePowerLevel(s string) (models.PowerLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AUTO":
		return models.PowerAuto, nil
	case "HALF":
		return models.PowerHalf, nil
	case "FULL":
		return models.PowerFull, nil
	}
	return models.PowerOff, fmt.Errorf("%w: %q", ErrUnknownPower, s)
}
