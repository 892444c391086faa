package models

import (
	"time"

	"github.com/google/uuid"
)

// LocationPolicy is the per-site geofence and verification policy. It is
// owned by administrative configuration; the verification pipeline only
// reads it.
type LocationPolicy struct {
	SiteID             uuid.UUID `db:"site_id"`
	DisplayName        string    `db:"display_name"`
	Latitude           float64   `db:"latitude"`
	Longitude          float64   `db:"longitude"`
	RadiusMeters       float64   `db:"radius_meters"`
	BiometricRequired  bool      `db:"biometric_required"`
	BiometricMandatory bool      `db:"biometric_mandatory"`
	Active             bool      `db:"active"`
}

// FaceProfile stores one enrolled face descriptor. At most one profile is
// primary per employee; re-enrollment inserts a new row and flips the flag,
// superseded rows are kept for audit only.
type FaceProfile struct {
	ID                uuid.UUID `db:"id"`
	EmployeeID        uuid.UUID `db:"employee_id"`
	Descriptor        []float64 `db:"descriptor"`
	Primary           bool      `db:"is_primary"`
	EnrolledAt        time.Time `db:"enrolled_at"`
	CaptureDeviceInfo string    `db:"capture_device_info"`
}

// HardwareCredential is a device-bound public-key credential. The signature
// counter must be strictly increasing across authentications; a regression
// marks the credential flagged and it no longer authenticates.
type HardwareCredential struct {
	CredentialID     string     `db:"credential_id"` // opaque, device-issued
	EmployeeID       uuid.UUID  `db:"employee_id"`
	PublicKey        string     `db:"public_key"` // base64 DER (PKIX)
	SignatureCounter uint32     `db:"signature_counter"`
	DeviceLabel      string     `db:"device_label"`
	RegisteredAt     time.Time  `db:"registered_at"`
	LastUsedAt       *time.Time `db:"last_used_at"`
	FlaggedAt        *time.Time `db:"flagged_at"` // set on counter regression
}

type EventType string

const (
	EventCheckIn  EventType = "CHECK_IN"
	EventCheckOut EventType = "CHECK_OUT"
)

type VerificationMethod string

const (
	MethodGeoAndBiometric    VerificationMethod = "GEO_AND_BIOMETRIC"
	MethodGeoOnly            VerificationMethod = "GEO_ONLY"
	MethodBiometricOnly      VerificationMethod = "BIOMETRIC_ONLY"
	MethodHardwareCredential VerificationMethod = "HARDWARE_CREDENTIAL"
	MethodManual             VerificationMethod = "MANUAL"
)

// PunchRecord is the immutable output of an accepted punch. Corrections go
// through a separate administrative flow, never through this pipeline.
type PunchRecord struct {
	ID                  uuid.UUID          `db:"id"`
	EmployeeID          uuid.UUID          `db:"employee_id"`
	Date                string             `db:"date"` // YYYY-MM-DD, site-local
	EventType           EventType          `db:"event_type"`
	Timestamp           time.Time          `db:"timestamp"`
	LocationVerified    bool               `db:"location_verified"`
	DistanceMeters      *float64           `db:"distance_meters"`
	BiometricVerified   bool               `db:"biometric_verified"`
	BiometricConfidence *float64           `db:"biometric_confidence"`
	VerificationMethod  VerificationMethod `db:"verification_method"`
	DeviceInfo          string             `db:"device_info"`
}

// GeoFix is a device position sample. Cached fixes older than the configured
// max age are not acceptable for a geofence check.
type GeoFix struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ObservedAt time.Time `json:"observed_at"`
}
