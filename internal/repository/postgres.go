package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/veritime/attendance-service/internal/models"
)

type postgresPolicyRepository struct {
	db *sql.DB
}

func NewPostgresPolicyRepository(db *sql.DB) PolicyRepository {
	return &postgresPolicyRepository{db: db}
}

func (r *postgresPolicyRepository) GetActivePolicy(ctx context.Context, siteID uuid.UUID) (*models.LocationPolicy, error) {
	var p models.LocationPolicy
	err := r.db.QueryRowContext(ctx, `
		SELECT site_id, display_name, latitude, longitude, radius_meters,
		       biometric_required, biometric_mandatory, active
		FROM location_policies
		WHERE site_id = $1 AND active = TRUE`, siteID).
		Scan(&p.SiteID, &p.DisplayName, &p.Latitude, &p.Longitude, &p.RadiusMeters,
			&p.BiometricRequired, &p.BiometricMandatory, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active policy: %w", err)
	}
	return &p, nil
}

type postgresFaceProfileRepository struct {
	db *sql.DB
}

func NewPostgresFaceProfileRepository(db *sql.DB) FaceProfileRepository {
	return &postgresFaceProfileRepository{db: db}
}

func (r *postgresFaceProfileRepository) GetPrimary(ctx context.Context, employeeID uuid.UUID) (*models.FaceProfile, error) {
	var p models.FaceProfile
	var desc []float64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, employee_id, descriptor, is_primary, enrolled_at, capture_device_info
		FROM face_profiles
		WHERE employee_id = $1 AND is_primary = TRUE`, employeeID).
		Scan(&p.ID, &p.EmployeeID, pq.Array(&desc), &p.Primary, &p.EnrolledAt, &p.CaptureDeviceInfo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get primary face profile: %w", err)
	}
	p.Descriptor = desc
	return &p, nil
}

func (r *postgresFaceProfileRepository) ReplacePrimary(ctx context.Context, profile *models.FaceProfile) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace primary: %w", err)
	}
	defer tx.Rollback()

	// demote any current primary, keep the row for audit
	if _, err := tx.ExecContext(ctx, `
		UPDATE face_profiles SET is_primary = FALSE
		WHERE employee_id = $1 AND is_primary = TRUE`, profile.EmployeeID); err != nil {
		return fmt.Errorf("demote primary face profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO face_profiles (id, employee_id, descriptor, is_primary, enrolled_at, capture_device_info)
		VALUES ($1, $2, $3, TRUE, $4, $5)`,
		profile.ID, profile.EmployeeID, pq.Array(profile.Descriptor),
		profile.EnrolledAt, profile.CaptureDeviceInfo); err != nil {
		return fmt.Errorf("insert face profile: %w", err)
	}

	return tx.Commit()
}

type postgresCredentialRepository struct {
	db *sql.DB
}

func NewPostgresCredentialRepository(db *sql.DB) CredentialRepository {
	return &postgresCredentialRepository{db: db}
}

func (r *postgresCredentialRepository) Create(ctx context.Context, cred *models.HardwareCredential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO hardware_credentials
			(credential_id, employee_id, public_key, signature_counter, device_label, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		cred.CredentialID, cred.EmployeeID, cred.PublicKey,
		cred.SignatureCounter, cred.DeviceLabel, cred.RegisteredAt)
	if err != nil {
		return fmt.Errorf("insert hardware credential: %w", err)
	}
	return nil
}

func (r *postgresCredentialRepository) GetByID(ctx context.Context, credentialID string) (*models.HardwareCredential, error) {
	var c models.HardwareCredential
	err := r.db.QueryRowContext(ctx, `
		SELECT credential_id, employee_id, public_key, signature_counter,
		       device_label, registered_at, last_used_at, flagged_at
		FROM hardware_credentials
		WHERE credential_id = $1`, credentialID).
		Scan(&c.CredentialID, &c.EmployeeID, &c.PublicKey, &c.SignatureCounter,
			&c.DeviceLabel, &c.RegisteredAt, &c.LastUsedAt, &c.FlaggedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get hardware credential: %w", err)
	}
	return &c, nil
}

func (r *postgresCredentialRepository) ListByEmployee(ctx context.Context, employeeID uuid.UUID) ([]models.HardwareCredential, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT credential_id, employee_id, public_key, signature_counter,
		       device_label, registered_at, last_used_at, flagged_at
		FROM hardware_credentials
		WHERE employee_id = $1
		ORDER BY registered_at`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("list hardware credentials: %w", err)
	}
	defer rows.Close()

	var out []models.HardwareCredential
	for rows.Next() {
		var c models.HardwareCredential
		if err := rows.Scan(&c.CredentialID, &c.EmployeeID, &c.PublicKey, &c.SignatureCounter,
			&c.DeviceLabel, &c.RegisteredAt, &c.LastUsedAt, &c.FlaggedAt); err != nil {
			return nil, fmt.Errorf("scan hardware credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *postgresCredentialRepository) UpdateCounter(ctx context.Context, credentialID string, counter uint32, usedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE hardware_credentials
		SET signature_counter = $2, last_used_at = $3
		WHERE credential_id = $1`, credentialID, counter, usedAt)
	if err != nil {
		return fmt.Errorf("update credential counter: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresCredentialRepository) Flag(ctx context.Context, credentialID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE hardware_credentials
		SET flagged_at = $2
		WHERE credential_id = $1 AND flagged_at IS NULL`, credentialID, at)
	if err != nil {
		return fmt.Errorf("flag credential: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type postgresPunchRepository struct {
	db *sql.DB
}

func NewPostgresPunchRepository(db *sql.DB) PunchRepository {
	return &postgresPunchRepository{db: db}
}

func (r *postgresPunchRepository) Create(ctx context.Context, rec *models.PunchRecord) (uuid.UUID, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO punch_records
			(id, employee_id, date, event_type, timestamp, location_verified,
			 distance_meters, biometric_verified, biometric_confidence,
			 verification_method, device_info)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.EmployeeID, rec.Date, rec.EventType, rec.Timestamp,
		rec.LocationVerified, rec.DistanceMeters, rec.BiometricVerified,
		rec.BiometricConfidence, rec.VerificationMethod, rec.DeviceInfo)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert punch record: %w", err)
	}
	return rec.ID, nil
}
