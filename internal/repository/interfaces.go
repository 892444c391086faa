package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/veritime/attendance-service/internal/models"
)

var ErrNotFound = errors.New("not found")

// PolicyRepository supplies the active LocationPolicy for a site. The
// pipeline never writes policies; they are administrative configuration.
type PolicyRepository interface {
	GetActivePolicy(ctx context.Context, siteID uuid.UUID) (*models.LocationPolicy, error)
}

// FaceProfileRepository handles enrolled face descriptors. ReplacePrimary is
// atomic: the old primary is demoted and the new row marked primary in one
// transaction, so two enrollments can never both end up primary.
type FaceProfileRepository interface {
	GetPrimary(ctx context.Context, employeeID uuid.UUID) (*models.FaceProfile, error)
	ReplacePrimary(ctx context.Context, profile *models.FaceProfile) error
}

// CredentialRepository handles hardware credential persistence.
type CredentialRepository interface {
	Create(ctx context.Context, cred *models.HardwareCredential) error
	GetByID(ctx context.Context, credentialID string) (*models.HardwareCredential, error)
	ListByEmployee(ctx context.Context, employeeID uuid.UUID) ([]models.HardwareCredential, error)
	UpdateCounter(ctx context.Context, credentialID string, counter uint32, usedAt time.Time) error
	Flag(ctx context.Context, credentialID string, at time.Time) error
}

// PunchRepository accepts finalized punch records. Records are insert-only
// from this pipeline's perspective.
type PunchRepository interface {
	Create(ctx context.Context, rec *models.PunchRecord) (uuid.UUID, error)
}
