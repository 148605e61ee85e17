package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/jalvrz/go-sos-relay/internal/models"
)

// Ack is the server's confirmation that a report was durably accepted.
type Ack struct {
	CallID string
}

// SendError classifies a failed delivery attempt. To the coordinator every
// SendError is transient: the record stays queued either way.
type SendError struct {
	StatusCode int // 0 for transport-level failures
	Err        error
}

func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("send rejected with status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the attempt expired before completing. Expiry is
// treated identically to a network failure.
func (e *SendError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// ServerRejection reports whether the server answered with a non-2xx status.
func (e *SendError) ServerRejection() bool {
	return e.StatusCode >= 400
}

// Gateway is the thin interface to the remote dispatch API. Every SendReport
// carries the report's local id so the server can collapse duplicate
// deliveries after a lost ack.
type Gateway interface {
	SendReport(ctx context.Context, r *models.EmergencyReport) (*Ack, error)
	ResolveAddress(ctx context.Context, lat, lng float64) (string, error)
	StartRecording(ctx context.Context) (string, error)
	StopRecording(ctx context.Context, recordingID string) error
	HealthCheck(ctx context.Context) error
}
