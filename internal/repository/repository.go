package repository

import (
	"context"
	"database/sql"
	"time"

	"boilerctl/internal/models"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

// StateRepo persists the single operational-state row so an orderly
// restart resumes the last commanded posture.
type StateRepo interface {
	Save(ctx context.Context, s models.StatePersisted) error
	Load(ctx context.Context) (models.StatePersisted, error)
}

// EventRepo is the append-only operational event log.
type EventRepo interface {
	Append(ctx context.Context, e models.BoilerEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.BoilerEvent, error)
}

// EmergencyRepo stores the forensic records written on Critical and above.
// Rows keep both decoded columns (queryable) and the original binary blob
// (integrity-checked source of truth).
type EmergencyRepo interface {
	Append(ctx context.Context, rec models.EmergencyRecord) error
	List(ctx context.Context) ([]models.EmergencyRecord, error)
	Clear(ctx context.Context) error
}

// CounterRepo persists lifetime runtime counters.
type CounterRepo interface {
	Save(ctx context.Context, c models.RuntimeCounters) error
	Load(ctx context.Context) (models.RuntimeCounters, error)
}

// TuningRepo persists per-loop PID tuning. Load reports found=false when
// the loop has never been tuned, so callers fall back to compiled defaults.
type TuningRepo interface {
	Save(ctx context.Context, loop string, t models.PIDTuning) error
	Load(ctx context.Context, loop string) (models.PIDTuning, bool, error)
}

// SettingsRepo is a flat key/value store for runtime-changed safety
// parameters. The config service owns key naming and value encoding.
type SettingsRepo interface {
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}

type Repository struct {
	StateRepo StateRepo
	EventRepo EventRepo
	Emergency EmergencyRepo
	Counters  CounterRepo
	Tuning    TuningRepo
	Settings  SettingsRepo
	Auth      Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StateRepo: NewStateSQLite(db),
		EventRepo: NewEventSQLite(db),
		Emergency: NewEmergencySQLite(db),
		Counters:  NewCounterSQLite(db),
		Tuning:    NewTuningSQLite(db),
		Settings:  NewSettingsSQLite(db),
		Auth:      NewUserRepository(db),
	}
}
