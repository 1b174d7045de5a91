package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"boilerctl/internal/models"
)

const (
	insertEventSQL = `
		INSERT INTO boiler_events (id, occurred_at, type, message, meta)
		VALUES (?, ?, ?, ?, ?)
	`
	selectEventsSQL = `SELECT id, occurred_at, type, message, meta FROM boiler_events`

	// occurred_at is stored in SQLite's datetime text form; List binds its
	// range bounds in the same layout so text comparison stays consistent.
	eventTimeLayout = "2006-01-02 15:04:05"
)

// EventSQLite persists the append-only event journal.
type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

// Append writes one event, filling a blank EventID with a fresh UUID and a
// zero OccurredAt with the current UTC time.
func (r *EventSQLite) Append(ctx context.Context, e models.BoilerEvent) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	e.OccurredAt = e.OccurredAt.UTC()

	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.EventID,
		e.OccurredAt.Format(eventTimeLayout),
		normalizeEventType(e.Type),
		e.Description,
		encodeEventMeta(e.Metadata),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// List returns events inside [from, to], optionally restricted to one type,
// oldest first. Zero bounds and a blank type mean no filter on that axis.
func (r *EventSQLite) List(ctx context.Context, from, to time.Time, typ string) ([]models.BoilerEvent, error) {
	var (
		where []string
		args  []any
	)
	if !from.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, from.UTC().Format(eventTimeLayout))
	}
	if !to.IsZero() {
		where = append(where, "occurred_at <= ?")
		args = append(args, to.UTC().Format(eventTimeLayout))
	}
	if typ = normalizeEventType(typ); typ != "" {
		where = append(where, "type = ?")
		args = append(args, typ)
	}

	query := selectEventsSQL
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]models.BoilerEvent, 0, 64)
	for rows.Next() {
		var (
			ev   models.BoilerEvent
			meta sql.NullString
		)
		if err := rows.Scan(&ev.EventID, &ev.OccurredAt, &ev.Type, &ev.Description, &meta); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.OccurredAt = ev.OccurredAt.UTC()
		ev.Metadata = decodeEventMeta(meta)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// normalizeEventType folds caller-supplied type strings onto the canonical
// upper-case form used in storage.
func normalizeEventType(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

// encodeEventMeta renders metadata as JSON, or nil when there is none.
// Unencodable metadata is dropped rather than blocking the event itself.
func encodeEventMeta(meta any) *string {
	if meta == nil {
		return nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

// decodeEventMeta parses a stored meta column back into a generic value.
// Rows whose meta is not valid JSON come back as the raw string.
func decodeEventMeta(meta sql.NullString) any {
	if !meta.Valid || meta.String == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(meta.String), &v); err != nil {
		return meta.String
	}
	return v
}
