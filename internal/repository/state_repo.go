package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"boilerctl/internal/models"
)

type StateSQLite struct {
	db *sql.DB
}

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db}
}

const (
	boilerStateRowID = 1

	insertOrUpdateStateSQL = `
		INSERT INTO boiler_state (id, enabled, mode, power, target_tenths, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled=excluded.enabled,
			mode=excluded.mode,
			power=excluded.power,
			target_tenths=excluded.target_tenths,
			updated_at=excluded.updated_at
	`

	selectStateSQL = `
		SELECT enabled, mode, power, target_tenths, updated_at
		FROM boiler_state WHERE id=?
	`
)

// Save updates or inserts the boiler_state row (id always 1).
func (r *StateSQLite) Save(ctx context.Context, s models.StatePersisted) error {
	// persist UpdatedAt as UTC; set if zero
	tsUTC := s.UpdatedAt
	if tsUTC.IsZero() {
		tsUTC = time.Now().UTC()
	} else {
		tsUTC = tsUTC.UTC()
	}

	_, err := r.db.ExecContext(ctx, insertOrUpdateStateSQL,
		boilerStateRowID,
		s.Enabled,
		s.Mode,
		s.Power,
		s.TargetTenths,
		tsUTC,
	)
	return err
}

// Load fetches the single boiler_state row. A missing row is not an
// error: the zero value means "never persisted" and callers fall back to
// a safe default posture.
func (r *StateSQLite) Load(ctx context.Context) (models.StatePersisted, error) {
	row := r.db.QueryRowContext(ctx, selectStateSQL, boilerStateRowID)

	var s models.StatePersisted
	if err := row.Scan(
		&s.Enabled,
		&s.Mode,
		&s.Power,
		&s.TargetTenths,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.StatePersisted{}, nil // no state yet
		}
		return models.StatePersisted{}, err
	}
	s.UpdatedAt = s.UpdatedAt.UTC()

	return s, nil
}
