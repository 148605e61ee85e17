package queue

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jalvrz/go-sos-relay/internal/models"
)

type SQLiteQueue struct {
	db *sql.DB
}

func NewSQLiteQueue(path string) (*SQLiteQueue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening queue database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging queue database: %w", err)
	}

	q := &SQLiteQueue{
		db: db,
	}
	if err := q.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating queue database: %w", err)
	}
	if err := q.recoverInFlight(); err != nil {
		return nil, fmt.Errorf("error recovering in-flight records: %w", err)
	}

	return q, nil
}

func (q *SQLiteQueue) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS reports (
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
			state TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
		CREATE INDEX IF NOT EXISTS idx_reports_state ON reports(state);
  	`

	_, err := q.db.Exec(schema)
	return err
}

// recoverInFlight returns records abandoned mid-send by a crash to the
// retryable set. A send with no observed ack must be retried; the local id
// lets the server collapse any duplicate.
func (q *SQLiteQueue) recoverInFlight() error {
	_, err := q.db.Exec(`UPDATE reports SET state = ? WHERE state = ?`,
		models.StatePending, models.StateInFlight)
	return err
}

func (q *SQLiteQueue) Append(ctx context.Context, r *models.EmergencyReport) error {
	var lat, lng sql.NullFloat64
	hasLoc := 0
	if r.Location != nil {
		hasLoc = 1
		lat = sql.NullFloat64{Float64: r.Location.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: r.Location.Longitude, Valid: true}
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO reports (
			local_id, name, phone, emergency_type, description,
			has_location, latitude, longitude, location_address,
			recording_id, created_at, state, retry_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id) DO NOTHING`,
		r.LocalID, r.Name, r.Phone, r.EmergencyType, r.Description,
		hasLoc, lat, lng, r.LocationAddress,
		r.RecordingID, r.CreatedAt, models.StatePending, r.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("error appending report %s: %w", r.LocalID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking append result: %w", err)
	}
	if rows == 0 {
		return ErrDuplicateID
	}
	return nil
}

func (q *SQLiteQueue) Remove(ctx context.Context, localID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM reports WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("error removing report %s: %w", localID, err)
	}
	return nil
}

func (q *SQLiteQueue) ListPending(ctx context.Context) ([]models.EmergencyReport, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT local_id, name, phone, emergency_type, description,
			has_location, latitude, longitude, location_address,
			recording_id, created_at, state, retry_count
		FROM reports
		WHERE state IN (?, ?)
		ORDER BY created_at ASC, local_id ASC`,
		models.StatePending, models.StateFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("error listing pending reports: %w", err)
	}
	defer rows.Close()

	var reports []models.EmergencyReport
	for rows.Next() {
		var (
			r        models.EmergencyReport
			hasLoc   int
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(
			&r.LocalID, &r.Name, &r.Phone, &r.EmergencyType, &r.Description,
			&hasLoc, &lat, &lng, &r.LocationAddress,
			&r.RecordingID, &r.CreatedAt, &r.State, &r.RetryCount,
		); err != nil {
			return nil, fmt.Errorf("error scanning report row: %w", err)
		}
		if hasLoc == 1 {
			r.Location = &models.Coordinates{Latitude: lat.Float64, Longitude: lng.Float64}
		}
		reports = append(reports, r)
	}

	return reports, rows.Err()
}

func (q *SQLiteQueue) MarkInFlight(ctx context.Context, localID string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE reports SET state = ? WHERE local_id = ? AND state IN (?, ?)`,
		models.StateInFlight, localID, models.StatePending, models.StateFailed,
	)
	if err != nil {
		return fmt.Errorf("error marking report %s in flight: %w", localID, err)
	}
	return nil
}

func (q *SQLiteQueue) MarkFailed(ctx context.Context, localID string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE reports SET state = ?, retry_count = retry_count + 1 WHERE local_id = ?`,
		models.StateFailed, localID,
	)
	if err != nil {
		return fmt.Errorf("error marking report %s failed: %w", localID, err)
	}
	return nil
}

func (q *SQLiteQueue) UpdateAddress(ctx context.Context, localID, address string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE reports SET location_address = ? WHERE local_id = ?`,
		address, localID,
	)
	if err != nil {
		return fmt.Errorf("error updating address for report %s: %w", localID, err)
	}
	return nil
}

func (q *SQLiteQueue) Depth(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("error counting queued reports: %w", err)
	}
	return n, nil
}

func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}
