package service

import (
	"context"
	"time"

	"boilerctl/internal/config"
	"boilerctl/internal/logger"
	"boilerctl/internal/models"
	"boilerctl/internal/repository"
)

// The services sit between the HTTP/MQTT edges and the control core.
// They consume narrow views of the core so tests can stand in fakes
// without running the real control loops.

// BurnerControl is the slice of the burner state machine the services use.
type BurnerControl interface {
	Enable()
	Disable()
	Enabled() bool
	State() models.BurnerState
	Mode() models.BurnerMode
	Power() models.PowerLevel
	Demand() models.HeatDemand
	IgnitionAttempts() int
	LockoutUntil() time.Time
	ResetLockout() error
	ResetError() error
}

// Regulation is the operator-facing slice of the temperature regulator.
type Regulation interface {
	EnableHeating(on bool)
	EnableWater(on bool)
	HeatingEnabled() bool
	WaterEnabled() bool
	SetHeatingTarget(t models.Temperature) error
	HeatingTarget() models.Temperature
	SetWaterBand(low, high models.Temperature) error
	WaterBand() (low, high models.Temperature)
	SetPowerPreference(p models.PowerLevel) error
	PowerPreference() models.PowerLevel
	Modulation() int
	WaterCharging() bool
}

// FailsafeStatus is the read-and-recover slice of the failsafe coordinator.
type FailsafeStatus interface {
	Level() models.FailsafeLevel
	Reason() models.FailsafeReason
	Detail() string
	AttemptRecovery() error
}

// RuntimeStats reads the lifetime service counters.
type RuntimeStats interface {
	Counters(now time.Time) models.RuntimeCounters
}

// SnapshotSource reads the latest sensor snapshot.
type SnapshotSource interface {
	Snapshot() (models.SensorSnapshot, bool)
}

// RelayView reads the confirmed relay output state.
type RelayView interface {
	Mask() models.RelayMask
}

// Tuner is the tuning slice of the regulation PID loop.
type Tuner interface {
	Tuning() (models.PIDTuning, error)
	SetTuning(t models.PIDTuning) error
}

// Recorder accepts events for the persisted log without blocking.
type Recorder interface {
	Record(eventType, description string)
}

// Core bundles the control-plane views every service draws from.
type Core struct {
	Burner    BurnerControl
	Regulator Regulation
	Failsafe  FailsafeStatus
	Runtime   RuntimeStats
	Sensors   SnapshotSource
	Relays    RelayView
	Tuner     Tuner
	Safety    *config.SafetyParams
}

// Boiler exposes operator commands: enable/disable, demand changes, and
// the gated recovery paths.
type Boiler interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	SetDemand(ctx context.Context, p DemandParams) error
	ResetLockout(ctx context.Context) error
	Recover(ctx context.Context) error
	RestoreState(ctx context.Context) error
}

// Monitoring exposes the read-only aggregate status and the forensic
// emergency trail.
type Monitoring interface {
	Status() models.BoilerStatus
	Counters() models.RuntimeCounters
	Emergencies(ctx context.Context) ([]models.EmergencyRecord, error)
	ClearEmergencies(ctx context.Context) error
}

// EventLog exposes the append-only event history with filtering.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.BoilerEvent, error)
}

// SafetyConfig exposes the runtime-tunable safety parameters.
type SafetyConfig interface {
	View() SafetySettings
	Update(ctx context.Context, u SafetyUpdate) error
	Restore(ctx context.Context) error
}

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Service aggregates all sub-services behind one dependency for the
// HTTP layer.
type Service struct {
	Boiler
	Monitoring
	EventLog
	SafetyConfig
	Authorization
}

// NewService wires the control core and repositories into concrete
// services. The event log service is built by the caller because the
// control core needs it as an event sink before the core views exist.
func NewService(core Core, repos *repository.Repository, events *EventLogService, cfg config.Config, log *logger.Logger) *Service {
	return &Service{
		Boiler:        NewBoilerService(core, repos.StateRepo, log),
		Monitoring:    NewMonitoringService(core, repos.Emergency, events, log),
		EventLog:      events,
		SafetyConfig:  NewSafetyConfigService(core, repos.Settings, repos.Tuning, events, log),
		Authorization: NewAuthService(repos.Auth, cfg.Auth.SigningKey, cfg.Auth.TokenTTL),
	}
}
