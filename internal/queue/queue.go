package queue

import (
	"context"
	"errors"

	"github.com/jalvrz/go-sos-relay/internal/models"
)

// ErrDuplicateID is returned by Append when a record with the same local id
// already exists. Local ids are never reused, even after removal.
var ErrDuplicateID = errors.New("duplicate local id")

// Queue is a durable, crash-tolerant ordered store of emergency reports.
// A record leaves the queue only when the server has acknowledged it.
type Queue interface {
	// Append persists a new record. It never overwrites an existing local id.
	Append(ctx context.Context, r *models.EmergencyReport) error

	// Remove deletes the record for localID. Removing a missing id is a
	// no-op, which guards against double-ack races.
	Remove(ctx context.Context, localID string) error

	// ListPending returns a point-in-time copy of all pending and failed
	// records, ordered by created_at ascending (oldest first).
	ListPending(ctx context.Context) ([]models.EmergencyReport, error)

	// MarkInFlight flags a record as having a send attempt in progress.
	// No-op if the record was already removed.
	MarkInFlight(ctx context.Context, localID string) error

	// MarkFailed returns a record to the retryable set and increments its
	// retry count. No-op if the record was already removed.
	MarkFailed(ctx context.Context, localID string) error

	// UpdateAddress fills the display address on a queued record. Best
	// effort: a record that was delivered in the meantime is left alone.
	UpdateAddress(ctx context.Context, localID, address string) error

	// Depth reports how many records are currently queued.
	Depth(ctx context.Context) (int, error)
}
