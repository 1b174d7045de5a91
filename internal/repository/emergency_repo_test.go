package repository

import (
	"regexp"
	"testing"
	"time"

	"boilerctl/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
)

func testEmergency() models.EmergencyRecord {
	var mask models.RelayMask
	mask = mask.Set(models.RelayHeatingPump, true)
	return models.EmergencyRecord{
		OccurredAt:    time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		Reason:        models.ReasonOverpressure,
		Level:         models.LevelEmergency,
		ActiveRelays:  mask,
		HeatingActive: true,
		BoilerTemp:    980,
		Pressure:      360,
	}
}

func TestEmergencyAppend_WritesColumnsAndBlob(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewEmergencySQLite(db)
	rec := testEmergency()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO emergency_records")).
		WithArgs(
			sqlmock.AnyArg(), // generated id
			"2026-03-04 05:06:07",
			"OVERPRESSURE",
			"EMERGENCY",
			rec.ActiveRelays,
			rec.BoilerTemp,
			rec.Pressure,
			true,
			false,
			rec.Encode(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Append(testCtx(t), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEmergencyList_DecodesBlobAndSkipsCorruptRows(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewEmergencySQLite(db)
	rec := testEmergency()
	good := rec.Encode()
	corrupt := append([]byte(nil), good...)
	corrupt[5] ^= 0xFF

	rows := sqlmock.NewRows([]string{"id", "blob"}).
		AddRow("aaa", good).
		AddRow("bbb", corrupt)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, blob FROM emergency_records ORDER BY occurred_at DESC")).
		WillReturnRows(rows)

	got, err := repo.List(testCtx(t))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 decodable record, got %d", len(got))
	}
	if got[0].ID != "aaa" {
		t.Fatalf("id = %q", got[0].ID)
	}
	if got[0].Reason != models.ReasonOverpressure || got[0].BoilerTemp != 980 {
		t.Fatalf("decoded record mismatch: %+v", got[0])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEmergencyClear(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewEmergencySQLite(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM emergency_records")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := repo.Clear(testCtx(t)); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}
