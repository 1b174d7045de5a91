package service

import (
	"context"
	"time"

	"boilerctl/internal/logger"
	"boilerctl/internal/models"
	"boilerctl/internal/repository"
)

// MonitoringService assembles the aggregate status view and serves the
// forensic emergency trail.
type MonitoringService struct {
	burner    BurnerControl
	regulator Regulation
	failsafe  FailsafeStatus
	runtime   RuntimeStats
	sensors   SnapshotSource
	relays    RelayView
	emergency repository.EmergencyRepo
	events    Recorder
	log       *logger.Logger
	clock     func() time.Time
}

func NewMonitoringService(core Core, emergency repository.EmergencyRepo, events Recorder, log *logger.Logger) *MonitoringService {
	return &MonitoringService{
		burner:    core.Burner,
		regulator: core.Regulator,
		failsafe:  core.Failsafe,
		runtime:   core.Runtime,
		sensors:   core.Sensors,
		relays:    core.Relays,
		emergency: emergency,
		events:    events,
		log:       log,
		clock:     time.Now,
	}
}

// Status assembles the aggregate view served to clients. Faulted
// temperature channels render as zero; pressure carries its own
// validity flag because the sensor is optional equipment.
func (s *MonitoringService) Status() models.BoilerStatus {
	snap, _ := s.sensors.Snapshot()
	state := s.burner.State()

	st := models.BoilerStatus{
		Enabled:       s.burner.Enabled(),
		State:         state.String(),
		Mode:          s.burner.Mode().String(),
		Power:         s.burner.Power().String(),
		FailsafeLevel: s.failsafe.Level().String(),
		BoilerTempC:   tempC(snap.BoilerSupply, snap.BoilerSupplyValid),
		ReturnTempC:   tempC(snap.BoilerReturn, snap.BoilerReturnValid),
		TankTempC:     tempC(snap.TankTemp, snap.TankTempValid),
		TargetTempC:   s.targetC(),
		PressureBar:   pressureBar(snap.SystemPressure, snap.SystemPressureValid),
		PressureValid: snap.SystemPressureValid,
		Modulation:    s.regulator.Modulation(),
		ActiveRelays:  relayNames(s.relays.Mask()),
		IgnitionTries: s.burner.IgnitionAttempts(),
		LockedOut:     state == models.StateLockout,
		UpdatedAt:     snap.UpdatedAt,
	}
	if reason := s.failsafe.Reason(); reason != models.ReasonNone {
		st.FailsafeReason = reason.String()
	}
	if until := s.burner.LockoutUntil(); !until.IsZero() {
		st.LockoutUntil = until.UTC()
	}
	return st
}

// Counters reports lifetime runtime totals.
func (s *MonitoringService) Counters() models.RuntimeCounters {
	return s.runtime.Counters(s.clock())
}

// Emergencies lists the stored forensic records, newest first.
func (s *MonitoringService) Emergencies(ctx context.Context) ([]models.EmergencyRecord, error) {
	return s.emergency.List(ctx)
}

// ClearEmergencies purges the forensic trail after an operator has
// reviewed it. The purge itself lands in the event log.
func (s *MonitoringService) ClearEmergencies(ctx context.Context) error {
	if err := s.emergency.Clear(ctx); err != nil {
		return err
	}
	s.events.Record(models.EventConfigChange, "emergency records cleared")
	return nil
}

// targetC reports the setpoint currently being chased: the live demand
// target when one is active, otherwise the configured heating setpoint.
func (s *MonitoringService) targetC() float64 {
	if d := s.burner.Demand(); d.Active && d.Target.Valid() {
		return d.Target.Celsius()
	}
	return s.regulator.HeatingTarget().Celsius()
}

func tempC(t models.Temperature, valid bool) float64 {
	if !valid || !t.Valid() {
		return 0
	}
	return t.Celsius()
}

func pressureBar(p models.Pressure, valid bool) float64 {
	if !valid || !p.Valid() {
		return 0
	}
	return p.Bar()
}

func relayNames(mask models.RelayMask) []string {
	active := mask.Active()
	names := make([]string, 0, len(active))
	for _, r := range active {
		names = append(names, r.String())
	}
	return names
}
