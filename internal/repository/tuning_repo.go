package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"boilerctl/internal/models"
)

type TuningSQLite struct {
	db *sql.DB
}

func NewTuningSQLite(db *sql.DB) *TuningSQLite { return &TuningSQLite{db: db} }

const (
	insertOrUpdateTuningSQL = `
		INSERT INTO pid_tuning (loop, kp, ki, kd, out_min_tenths, out_max_tenths, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(loop) DO UPDATE SET
			kp=excluded.kp,
			ki=excluded.ki,
			kd=excluded.kd,
			out_min_tenths=excluded.out_min_tenths,
			out_max_tenths=excluded.out_max_tenths,
			updated_at=excluded.updated_at
	`

	selectTuningSQL = `
		SELECT kp, ki, kd, out_min_tenths, out_max_tenths, updated_at
		FROM pid_tuning WHERE loop=?
	`
)

// Save upserts one loop's tuning.
func (r *TuningSQLite) Save(ctx context.Context, loop string, t models.PIDTuning) error {
	ts := t.UpdatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	} else {
		ts = ts.UTC()
	}
	_, err := r.db.ExecContext(ctx, insertOrUpdateTuningSQL,
		loop,
		t.Kp,
		t.Ki,
		t.Kd,
		t.OutputMin,
		t.OutputMax,
		ts,
	)
	return err
}

// Load fetches one loop's tuning; found=false when the loop was never tuned.
func (r *TuningSQLite) Load(ctx context.Context, loop string) (models.PIDTuning, bool, error) {
	row := r.db.QueryRowContext(ctx, selectTuningSQL, loop)

	var t models.PIDTuning
	if err := row.Scan(
		&t.Kp,
		&t.Ki,
		&t.Kd,
		&t.OutputMin,
		&t.OutputMax,
		&t.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PIDTuning{}, false, nil
		}
		return models.PIDTuning{}, false, err
	}
	t.UpdatedAt = t.UpdatedAt.UTC()

	return t, true, nil
}
