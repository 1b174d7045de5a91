package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"boilerctl/internal/models"
)

type CounterSQLite struct {
	db *sql.DB
}

func NewCounterSQLite(db *sql.DB) *CounterSQLite { return &CounterSQLite{db: db} }

const (
	countersRowID = 1

	insertOrUpdateCountersSQL = `
		INSERT INTO runtime_counters
			(id, total_runtime_s, burner_runtime_s, heating_cycles, water_cycles,
			 heating_pump_starts, water_pump_starts,
			 ignition_count, lockout_count, emergency_stops, last_boot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_runtime_s=excluded.total_runtime_s,
			burner_runtime_s=excluded.burner_runtime_s,
			heating_cycles=excluded.heating_cycles,
			water_cycles=excluded.water_cycles,
			heating_pump_starts=excluded.heating_pump_starts,
			water_pump_starts=excluded.water_pump_starts,
			ignition_count=excluded.ignition_count,
			lockout_count=excluded.lockout_count,
			emergency_stops=excluded.emergency_stops,
			last_boot=excluded.last_boot
	`

	selectCountersSQL = `
		SELECT total_runtime_s, burner_runtime_s, heating_cycles, water_cycles,
		       heating_pump_starts, water_pump_starts,
		       ignition_count, lockout_count, emergency_stops, last_boot
		FROM runtime_counters WHERE id=?
	`
)

// Save upserts the single counters row. Durations are stored as whole
// seconds; sub-second residue is not worth carrying across restarts.
func (r *CounterSQLite) Save(ctx context.Context, c models.RuntimeCounters) error {
	lastBoot := c.LastBoot
	if lastBoot.IsZero() {
		lastBoot = time.Now().UTC()
	} else {
		lastBoot = lastBoot.UTC()
	}
	_, err := r.db.ExecContext(ctx, insertOrUpdateCountersSQL,
		countersRowID,
		int64(c.TotalRuntime/time.Second),
		int64(c.BurnerRuntime/time.Second),
		c.HeatingCycles,
		c.WaterCycles,
		c.HeatingPumpStarts,
		c.WaterPumpStarts,
		c.IgnitionCount,
		c.LockoutCount,
		c.EmergencyStops,
		lastBoot,
	)
	return err
}

// Load fetches the counters row; the zero value means a fresh install.
func (r *CounterSQLite) Load(ctx context.Context) (models.RuntimeCounters, error) {
	row := r.db.QueryRowContext(ctx, selectCountersSQL, countersRowID)

	var c models.RuntimeCounters
	var totalS, burnerS int64
	if err := row.Scan(
		&totalS,
		&burnerS,
		&c.HeatingCycles,
		&c.WaterCycles,
		&c.HeatingPumpStarts,
		&c.WaterPumpStarts,
		&c.IgnitionCount,
		&c.LockoutCount,
		&c.EmergencyStops,
		&c.LastBoot,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RuntimeCounters{}, nil
		}
		return models.RuntimeCounters{}, err
	}
	c.TotalRuntime = time.Duration(totalS) * time.Second
	c.BurnerRuntime = time.Duration(burnerS) * time.Second
	c.LastBoot = c.LastBoot.UTC()

	return c, nil
}
