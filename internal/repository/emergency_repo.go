package repository

import (
	"context"
	"database/sql"
	"time"

	"boilerctl/internal/models"

	"github.com/google/uuid"
)

type EmergencySQLite struct {
	db *sql.DB
}

func NewEmergencySQLite(db *sql.DB) *EmergencySQLite { return &EmergencySQLite{db: db} }

const (
	insertEmergencySQL = `
		INSERT INTO emergency_records
			(id, occurred_at, reason, level, relay_mask, boiler_temp_tenths,
			 pressure_hundredths, heating_active, water_active, blob)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectEmergenciesSQL = `
		SELECT id, blob FROM emergency_records ORDER BY occurred_at DESC
	`

	deleteEmergenciesSQL = `DELETE FROM emergency_records`
)

// Append stores one record: decoded columns for ad-hoc queries plus the
// checksummed binary blob as the source of truth.
func (r *EmergencySQLite) Append(ctx context.Context, rec models.EmergencyRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	} else {
		rec.OccurredAt = rec.OccurredAt.UTC()
	}

	_, err := r.db.ExecContext(ctx, insertEmergencySQL,
		rec.ID,
		rec.OccurredAt.Format("2006-01-02 15:04:05"),
		rec.Reason.String(),
		rec.Level.String(),
		rec.ActiveRelays,
		rec.BoilerTemp,
		rec.Pressure,
		rec.HeatingActive,
		rec.WaterActive,
		rec.Encode(),
	)
	return err
}

// List returns all stored records, newest first, decoded from their
// blobs. Rows whose blob fails the integrity check are dropped rather
// than poisoning the whole listing.
func (r *EmergencySQLite) List(ctx context.Context) ([]models.EmergencyRecord, error) {
	rows, err := r.db.QueryContext(ctx, selectEmergenciesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.EmergencyRecord, 0, 8)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		rec, derr := models.DecodeEmergencyRecord(blob)
		if derr != nil {
			continue
		}
		rec.ID = id
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Clear deletes every stored record.
func (r *EmergencySQLite) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, deleteEmergenciesSQL)
	return err
}
