package backend

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jalvrz/go-sos-relay/internal/models"
)

// CallRecord is an accepted emergency call as the dispatch side stores it.
type CallRecord struct {
	models.EmergencyReport
	ReceivedAt time.Time `json:"received_at"`
}

// CallLog is the dispatch backend's durable record of accepted calls, keyed
// by the client-assigned local id. The primary key is what makes report
// intake idempotent: a delivery retried after a lost ack lands on the same
// row.
type CallLog struct {
	db *sql.DB
}

func NewCallLog(path string) (*CallLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening call log: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging call log: %w", err)
	}

	l := &CallLog{
		db: db,
	}
	if err := l.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating call log: %w", err)
	}

	return l, nil
}

func (l *CallLog) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS calls (
			local_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			emergency_type TEXT,
			description TEXT,
			has_location INTEGER NOT NULL DEFAULT 0,
			latitude REAL,
			longitude REAL,
			location_address TEXT,
			recording_id TEXT,
			created_at DATETIME NOT NULL,
			received_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_calls_received_at ON calls(received_at);
  	`

	_, err := l.db.Exec(schema)
	return err
}

// Insert stores a call, reporting whether it was new. A repeated local id is
// not an error; the existing row wins and the caller acks as usual.
func (l *CallLog) Insert(ctx context.Context, r *models.EmergencyReport) (bool, error) {
	var lat, lng sql.NullFloat64
	hasLoc := 0
	if r.Location != nil {
		hasLoc = 1
		lat = sql.NullFloat64{Float64: r.Location.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: r.Location.Longitude, Valid: true}
	}

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO calls (
			local_id, name, phone, emergency_type, description,
			has_location, latitude, longitude, location_address,
			recording_id, created_at, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO NOTHING`,
		r.LocalID, r.Name, r.Phone, r.EmergencyType, r.Description,
		hasLoc, lat, lng, r.LocationAddress,
		r.RecordingID, r.CreatedAt, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("error inserting call %s: %w", r.LocalID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error checking insert result: %w", err)
	}
	return rows > 0, nil
}

func (l *CallLog) List(ctx context.Context, limit int) ([]CallRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT local_id, name, phone, emergency_type, description,
			has_location, latitude, longitude, location_address,
			recording_id, created_at, received_at
		FROM calls
		ORDER BY received_at DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("error listing calls: %w", err)
	}
	defer rows.Close()

	var calls []CallRecord
	for rows.Next() {
		var (
			c        CallRecord
			hasLoc   int
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(
			&c.LocalID, &c.Name, &c.Phone, &c.EmergencyType, &c.Description,
			&hasLoc, &lat, &lng, &c.LocationAddress,
			&c.RecordingID, &c.CreatedAt, &c.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning call row: %w", err)
		}
		if hasLoc == 1 {
			c.Location = &models.Coordinates{Latitude: lat.Float64, Longitude: lng.Float64}
		}
		calls = append(calls, c)
	}

	return calls, rows.Err()
}

func (l *CallLog) Count(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM calls`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("error counting calls: %w", err)
	}
	return n, nil
}

func (l *CallLog) Close() error {
	return l.db.Close()
}
