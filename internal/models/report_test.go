package models

import (
	"errors"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	r := &EmergencyReport{
		LocalID:   "local-1",
		Name:      "Jane Doe",
		Phone:     "555-0100",
		CreatedAt: time.Now(),
	}
	if err := r.Validate(); err != nil {
		t.Errorf("expected valid report, got: %v", err)
	}
}

func TestValidate_MissingRequiredFields(t *testing.T) {
	cases := []struct {
		name   string
		report EmergencyReport
	}{
		{"missing name", EmergencyReport{LocalID: "l1", Phone: "555-0100"}},
		{"missing phone", EmergencyReport{LocalID: "l1", Name: "Jane Doe"}},
		{"missing local id", EmergencyReport{Name: "Jane Doe", Phone: "555-0100"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.report.Validate()
			if !errors.Is(err, ErrInvalidReport) {
				t.Errorf("expected ErrInvalidReport, got %v", err)
			}
		})
	}
}

func TestValidate_OptionalFieldsMayBeEmpty(t *testing.T) {
	r := &EmergencyReport{
		LocalID:   "local-1",
		Name:      "Jane Doe",
		Phone:     "555-0100",
		CreatedAt: time.Now(),
		// no type, description, location, or recording
	}
	if err := r.Validate(); err != nil {
		t.Errorf("optional fields must not be required, got: %v", err)
	}
}
