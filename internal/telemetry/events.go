package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// PunchAuditEvent records the outcome of a punch attempt, accepted or not.
type PunchAuditEvent struct {
	EmployeeID          uuid.UUID `json:"employee_id"`
	SiteID              uuid.UUID `json:"site_id"`
	EventType           string    `json:"event_type"`
	Accepted            bool      `json:"accepted"`
	RejectionReason     string    `json:"rejection_reason,omitempty"`
	LocationVerified    bool      `json:"location_verified"`
	DistanceMeters      *float64  `json:"distance_meters,omitempty"`
	BiometricVerified   bool      `json:"biometric_verified"`
	BiometricConfidence *float64  `json:"biometric_confidence,omitempty"`
	VerificationMethod  string    `json:"verification_method,omitempty"`
	At                  time.Time `json:"at"`
}

// CredentialAuditEvent records hardware credential lifecycle actions:
// "registered", "authenticated", "clone_flagged".
type CredentialAuditEvent struct {
	EmployeeID   uuid.UUID `json:"employee_id"`
	CredentialID string    `json:"credential_id"`
	Action       string    `json:"action"`
	Counter      uint32    `json:"counter,omitempty"`
	At           time.Time `json:"at"`
}
