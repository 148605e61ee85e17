package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidReport wraps field validation failures. A report that fails
// validation is rejected before it ever touches the queue.
var ErrInvalidReport = errors.New("invalid emergency report")

var validate = validator.New()

type SubmissionState string

const (
	StatePending   SubmissionState = "pending"
	StateInFlight  SubmissionState = "in_flight"
	StateDelivered SubmissionState = "delivered"
	StateFailed    SubmissionState = "failed"
)

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// EmergencyReport is the unit of work flowing through the pipeline. LocalID is
// assigned on the device at creation time and doubles as the server-side
// idempotency key: a dropped ack followed by a retry must not create a second
// record for the same call.
type EmergencyReport struct {
	LocalID         string       `json:"local_id" validate:"required"`
	Name            string       `json:"name" validate:"required"`
	Phone           string       `json:"phone" validate:"required"`
	EmergencyType   string       `json:"emergency_type,omitempty"`
	Description     string       `json:"description,omitempty"`
	Location        *Coordinates `json:"location,omitempty"`
	LocationAddress string       `json:"location_address,omitempty"`
	RecordingID     string       `json:"recording_id,omitempty"`

	// CreatedAt is set once at creation and never mutated. It is the sole
	// ordering key for drain order and the tie-break for dedup.
	CreatedAt time.Time `json:"created_at"`

	State      SubmissionState `json:"-"`
	RetryCount int             `json:"-"`
}

func (r *EmergencyReport) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	return nil
}
