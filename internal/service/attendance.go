// Package service orchestrates the verification pipeline: geofence check,
// biometric capture, hardware credential assertion, and the final
// accept/reject decision on a punch.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/veritime/attendance-service/internal/biometric"
	"github.com/veritime/attendance-service/internal/capture"
	"github.com/veritime/attendance-service/internal/geofence"
	"github.com/veritime/attendance-service/internal/location"
	"github.com/veritime/attendance-service/internal/models"
	"github.com/veritime/attendance-service/internal/repository"
	"github.com/veritime/attendance-service/internal/telemetry"
	"github.com/veritime/attendance-service/internal/util/logger"
)

var ErrNoEnrollment = errors.New("no completed enrollment session")

// AuditPublisher is the slice of the telemetry shipper the service uses.
type AuditPublisher interface {
	Publish(ev any)
}

// AttendanceService wires the verifiers together and owns the punch
// decision. It never sees raw platform errors from the camera, GPS or
// authenticator; those are converted at each component's boundary.
type AttendanceService struct {
	policies repository.PolicyRepository
	faces    repository.FaceProfileRepository
	punches  repository.PunchRepository
	matcher  *biometric.Matcher
	captures *capture.Manager
	fixes    *location.FixService
	audit    AuditPublisher
}

func NewAttendanceService(
	policies repository.PolicyRepository,
	faces repository.FaceProfileRepository,
	punches repository.PunchRepository,
	matcher *biometric.Matcher,
	captures *capture.Manager,
	fixes *location.FixService,
	audit AuditPublisher,
) *AttendanceService {
	return &AttendanceService{
		policies: policies,
		faces:    faces,
		punches:  punches,
		matcher:  matcher,
		captures: captures,
		fixes:    fixes,
		audit:    audit,
	}
}

// BeginEnrollment opens a five-pose capture session for the employee.
func (s *AttendanceService) BeginEnrollment(ctx context.Context, employeeID uuid.UUID) (*capture.Session, error) {
	return s.captures.Begin(ctx, employeeID, capture.ModeEnrollment)
}

// BeginVerification opens a single-pose capture session for the employee.
func (s *AttendanceService) BeginVerification(ctx context.Context, employeeID uuid.UUID) (*capture.Session, error) {
	return s.captures.Begin(ctx, employeeID, capture.ModeVerification)
}

// SubmitCapture performs the capture action on the employee's active
// session for the named pose.
func (s *AttendanceService) SubmitCapture(ctx context.Context, employeeID uuid.UUID, pose capture.PoseLabel) (*capture.Session, error) {
	session, err := s.captures.Get(employeeID)
	if err != nil {
		return nil, err
	}
	if err := session.CapturePose(ctx, pose); err != nil {
		return session, err
	}
	return session, nil
}

// CancelCapture aborts the employee's active session, releasing the camera.
func (s *AttendanceService) CancelCapture(employeeID uuid.UUID) {
	s.captures.End(employeeID)
}

// CompleteEnrollment persists the front-pose descriptor of a completed
// enrollment session as the employee's new primary profile. The previous
// primary is superseded atomically and retained for audit.
func (s *AttendanceService) CompleteEnrollment(ctx context.Context, employeeID uuid.UUID, deviceInfo string) (*models.FaceProfile, error) {
	session, err := s.captures.Get(employeeID)
	if err != nil {
		return nil, err
	}
	descs, err := session.Descriptors()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoEnrollment, err)
	}
	front, ok := descs[capture.PoseFront]
	if !ok {
		return nil, ErrNoEnrollment
	}

	profile := &models.FaceProfile{
		ID:                uuid.New(),
		EmployeeID:        employeeID,
		Descriptor:        front,
		Primary:           true,
		EnrolledAt:        time.Now().UTC(),
		CaptureDeviceInfo: deviceInfo,
	}
	if err := s.faces.ReplacePrimary(ctx, profile); err != nil {
		return nil, err
	}

	s.captures.End(employeeID)
	logger.Infof("face profile %s enrolled for employee %s", profile.ID, employeeID)
	return profile, nil
}

// GeofenceCheck resolves the employee's position and verifies it against
// the site policy.
func (s *AttendanceService) GeofenceCheck(ctx context.Context, employeeID, siteID uuid.UUID) (geofence.Result, error) {
	policy, err := s.policies.GetActivePolicy(ctx, siteID)
	if err != nil {
		return geofence.Result{}, err
	}
	fix, err := s.fixes.CurrentFix(ctx, employeeID)
	if err != nil {
		return geofence.Result{}, err
	}
	return geofence.Verify(fix.Latitude, fix.Longitude, policy.Latitude, policy.Longitude, policy.RadiusMeters)
}

// PunchRequest carries caller intent into AttemptPunch.
type PunchRequest struct {
	EmployeeID uuid.UUID
	SiteID     uuid.UUID
	EventType  models.EventType
	DeviceInfo string

	// HardwareVerified is set by the caller after a successful hardware
	// credential assertion in this attempt.
	HardwareVerified bool
}

// AttemptPunch runs the full pipeline. On acceptance the punch record is
// persisted and returned; otherwise the rejection names the failing
// precondition and no record is created.
func (s *AttendanceService) AttemptPunch(ctx context.Context, req PunchRequest) (*models.PunchRecord, *Rejection, error) {
	policy, err := s.policies.GetActivePolicy(ctx, req.SiteID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &Rejection{Reason: ReasonPolicyNotFound, Detail: "no active policy for site"}, nil
	}
	if err != nil {
		return nil, nil, err
	}

	fix, err := s.fixes.CurrentFix(ctx, req.EmployeeID)
	if err != nil {
		if errors.Is(err, location.ErrFixTimeout) || errors.Is(err, location.ErrPermissionDenied) ||
			errors.Is(err, location.ErrDeviceUnavailable) {
			return nil, &Rejection{Reason: ReasonNoLocationFix, Detail: err.Error()}, nil
		}
		return nil, nil, err
	}

	geo, err := geofence.Verify(fix.Latitude, fix.Longitude, policy.Latitude, policy.Longitude, policy.RadiusMeters)
	if err != nil {
		return nil, nil, err
	}
	distance := geo.DistanceMeters

	signals := Signals{
		LocationOK:         geo.Verified,
		DistanceMeters:     &distance,
		BiometricRequired:  policy.BiometricRequired,
		BiometricMandatory: policy.BiometricMandatory,
		HardwareOK:         req.HardwareVerified,
	}

	profile, err := s.faces.GetPrimary(ctx, req.EmployeeID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		signals.ProfileExists = false
	case err != nil:
		return nil, nil, err
	default:
		signals.ProfileExists = true
		s.applyBiometricSignal(ctx, req.EmployeeID, profile, &signals)
	}

	decision := Decide(signals)
	if !decision.Accept {
		s.audit.Publish(telemetry.PunchAuditEvent{
			EmployeeID:          req.EmployeeID,
			SiteID:              req.SiteID,
			EventType:           string(req.EventType),
			Accepted:            false,
			RejectionReason:     string(decision.Rejection.Reason),
			LocationVerified:    signals.LocationOK,
			DistanceMeters:      signals.DistanceMeters,
			BiometricVerified:   signals.BiometricOK,
			BiometricConfidence: signals.Confidence,
			At:                  time.Now().UTC(),
		})
		return nil, decision.Rejection, nil
	}

	now := time.Now().UTC()
	rec := &models.PunchRecord{
		ID:                  uuid.New(),
		EmployeeID:          req.EmployeeID,
		Date:                now.Format("2006-01-02"),
		EventType:           req.EventType,
		Timestamp:           now,
		LocationVerified:    signals.LocationOK,
		DistanceMeters:      signals.DistanceMeters,
		BiometricVerified:   signals.BiometricAttempted && signals.BiometricOK,
		BiometricConfidence: signals.Confidence,
		VerificationMethod:  decision.Method,
		DeviceInfo:          req.DeviceInfo,
	}
	if _, err := s.punches.Create(ctx, rec); err != nil {
		return nil, nil, err
	}

	s.captures.End(req.EmployeeID)
	s.audit.Publish(telemetry.PunchAuditEvent{
		EmployeeID:          req.EmployeeID,
		SiteID:              req.SiteID,
		EventType:           string(req.EventType),
		Accepted:            true,
		LocationVerified:    rec.LocationVerified,
		DistanceMeters:      rec.DistanceMeters,
		BiometricVerified:   rec.BiometricVerified,
		BiometricConfidence: rec.BiometricConfidence,
		VerificationMethod:  string(rec.VerificationMethod),
		At:                  now,
	})
	logger.Infof("punch %s accepted for employee %s via %s", rec.ID, req.EmployeeID, rec.VerificationMethod)
	return rec, nil, nil
}

// applyBiometricSignal folds the employee's completed verification capture,
// if any, into the decision signals. Match failures are signal values here,
// not errors: the decision engine owns the consequence.
func (s *AttendanceService) applyBiometricSignal(ctx context.Context, employeeID uuid.UUID, profile *models.FaceProfile, signals *Signals) {
	session, err := s.captures.Get(employeeID)
	if err != nil {
		return
	}
	descs, err := session.Descriptors()
	if err != nil {
		return
	}
	live, ok := descs[capture.PoseFront]
	if !ok {
		return
	}

	res, err := s.matcher.Compare(live, profile.Descriptor)
	if err != nil {
		logger.Warnf("descriptor compare for employee %s: %v", employeeID, err)
		return
	}
	signals.BiometricAttempted = true
	signals.BiometricOK = res.Verified
	signals.Confidence = &res.Confidence
}
