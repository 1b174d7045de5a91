package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens/creates the SQLite DB file and ensures tables exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// Conservative pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is not great with many writers
	db.SetMaxIdleConns(1)

	// Pragmas to improve reliability
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA journal_mode=WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA foreign_keys=ON: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set PRAGMA busy_timeout=5000: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Fail fast if the DB cannot be reached
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

const schemaBoilerState = `
CREATE TABLE IF NOT EXISTS boiler_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    enabled BOOLEAN NOT NULL,
    mode TEXT NOT NULL,
    power TEXT NOT NULL,
    target_tenths INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaBoilerEvents = `
CREATE TABLE IF NOT EXISTS boiler_events (
    id TEXT PRIMARY KEY,
    occurred_at TIMESTAMP NOT NULL,
    type TEXT NOT NULL,
    message TEXT NOT NULL,
    meta TEXT
);
`

const schemaEmergencyRecords = `
CREATE TABLE IF NOT EXISTS emergency_records (
    id TEXT PRIMARY KEY,
    occurred_at TIMESTAMP NOT NULL,
    reason TEXT NOT NULL,
    level TEXT NOT NULL,
    relay_mask INTEGER NOT NULL,
    boiler_temp_tenths INTEGER NOT NULL,
    pressure_hundredths INTEGER NOT NULL,
    heating_active BOOLEAN NOT NULL,
    water_active BOOLEAN NOT NULL,
    blob BLOB NOT NULL
);
`

const schemaRuntimeCounters = `
CREATE TABLE IF NOT EXISTS runtime_counters (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    total_runtime_s INTEGER NOT NULL,
    burner_runtime_s INTEGER NOT NULL,
    heating_cycles INTEGER NOT NULL,
    water_cycles INTEGER NOT NULL,
    heating_pump_starts INTEGER NOT NULL,
    water_pump_starts INTEGER NOT NULL,
    ignition_count INTEGER NOT NULL,
    lockout_count INTEGER NOT NULL,
    emergency_stops INTEGER NOT NULL,
    last_boot TIMESTAMP NOT NULL
);
`

const schemaPIDTuning = `
CREATE TABLE IF NOT EXISTS pid_tuning (
    loop TEXT PRIMARY KEY,
    kp INTEGER NOT NULL,
    ki INTEGER NOT NULL,
    kd INTEGER NOT NULL,
    out_min_tenths INTEGER NOT NULL,
    out_max_tenths INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaSettings = `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		// In case of panic, rollback to avoid leaving an open transaction
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaBoilerState,
		schemaBoilerEvents,
		schemaEmergencyRecords,
		schemaRuntimeCounters,
		schemaPIDTuning,
		schemaSettings,
		schemaUsers,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
