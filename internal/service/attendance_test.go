package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritime/attendance-service/internal/biometric"
	"github.com/veritime/attendance-service/internal/capture"
	"github.com/veritime/attendance-service/internal/config"
	"github.com/veritime/attendance-service/internal/location"
	"github.com/veritime/attendance-service/internal/models"
	"github.com/veritime/attendance-service/internal/repository"
	"github.com/veritime/attendance-service/internal/telemetry"
)

// Kuwait City test site.
const (
	siteLat = 29.3759
	siteLon = 47.9774
)

type memPolicyRepo struct {
	policies map[uuid.UUID]*models.LocationPolicy
}

func (r *memPolicyRepo) GetActivePolicy(ctx context.Context, siteID uuid.UUID) (*models.LocationPolicy, error) {
	p, ok := r.policies[siteID]
	if !ok || !p.Active {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

type memFaceRepo struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*models.FaceProfile
}

func (r *memFaceRepo) GetPrimary(ctx context.Context, employeeID uuid.UUID) (*models.FaceProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[employeeID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (r *memFaceRepo) ReplacePrimary(ctx context.Context, profile *models.FaceProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.EmployeeID] = profile
	return nil
}

type memPunchRepo struct {
	mu      sync.Mutex
	records []*models.PunchRecord
}

func (r *memPunchRepo) Create(ctx context.Context, rec *models.PunchRecord) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return rec.ID, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.data[key] = b
	c.mu.Unlock()
	return nil
}

func (c *memCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	b, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		return redis.Nil
	}
	return json.Unmarshal(b, dest)
}

type fixedProvider struct {
	lat, lon float64
	err      error
}

func (p *fixedProvider) GetFix(ctx context.Context) (models.GeoFix, error) {
	if p.err != nil {
		return models.GeoFix{}, p.err
	}
	return models.GeoFix{Latitude: p.lat, Longitude: p.lon, ObservedAt: time.Now().UTC()}, nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []any
}

func (a *recordingAudit) Publish(ev any) {
	a.mu.Lock()
	a.events = append(a.events, ev)
	a.mu.Unlock()
}

func (a *recordingAudit) punchEvents() []telemetry.PunchAuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []telemetry.PunchAuditEvent
	for _, ev := range a.events {
		if pe, ok := ev.(telemetry.PunchAuditEvent); ok {
			out = append(out, pe)
		}
	}
	return out
}

// test camera plumbing for the capture manager

type svcStream struct{ frame biometric.Frame }

func (s *svcStream) Frame(ctx context.Context) (biometric.Frame, error) { return s.frame, nil }
func (s *svcStream) Close() error                                       { return nil }

type svcCamera struct{}

func (c *svcCamera) Open(ctx context.Context) (capture.FrameStream, error) {
	pix := make([]uint8, 64*64)
	for i := range pix {
		pix[i] = uint8(i % 255)
	}
	return &svcStream{frame: biometric.Frame{Width: 64, Height: 64, Pix: pix}}, nil
}

type svcModel struct{}

func (m *svcModel) Ready() bool                    { return true }
func (m *svcModel) Load(ctx context.Context) error { return nil }

type svcDetector struct{}

func (d *svcDetector) Detect(f biometric.Frame) (biometric.Region, bool) {
	return biometric.Region{W: f.Width, H: f.Height}, true
}

type svcEmbedder struct{ desc []float64 }

func (e *svcEmbedder) ExtractDescriptor(f biometric.Frame) ([]float64, error) {
	out := make([]float64, len(e.desc))
	copy(out, e.desc)
	return out, nil
}

func (e *svcEmbedder) Dimension() int { return len(e.desc) }

type fixture struct {
	svc      *AttendanceService
	policies *memPolicyRepo
	faces    *memFaceRepo
	punches  *memPunchRepo
	audit    *recordingAudit
	siteID   uuid.UUID
	embedder *svcEmbedder
}

func newFixture(t *testing.T, provider location.Provider, policy *models.LocationPolicy) *fixture {
	t.Helper()

	desc := make([]float64, 128)
	desc[0] = 1
	embedder := &svcEmbedder{desc: desc}

	captureCfg := config.CaptureConfig{
		ProbeInterval:     5 * time.Millisecond,
		ModelLoadTimeout:  50 * time.Millisecond,
		ModelPollInterval: 5 * time.Millisecond,
		ModelPollAttempts: 10,
	}
	captures := capture.NewManager(&svcCamera{}, &svcModel{}, &svcDetector{}, embedder, captureCfg)

	matcher := biometric.NewMatcher(config.BiometricConfig{DistanceThreshold: 0.6, MatchThreshold: 70})
	fixes := location.NewFixService(provider, newMemCache(), config.GeofenceConfig{
		FixTimeout: time.Second,
		FixMaxAge:  time.Minute,
	})

	siteID := uuid.New()
	policy.SiteID = siteID
	policies := &memPolicyRepo{policies: map[uuid.UUID]*models.LocationPolicy{siteID: policy}}
	faces := &memFaceRepo{profiles: map[uuid.UUID]*models.FaceProfile{}}
	punches := &memPunchRepo{}
	audit := &recordingAudit{}

	return &fixture{
		svc:      NewAttendanceService(policies, faces, punches, matcher, captures, fixes, audit),
		policies: policies,
		faces:    faces,
		punches:  punches,
		audit:    audit,
		siteID:   siteID,
		embedder: embedder,
	}
}

func basicPolicy() *models.LocationPolicy {
	return &models.LocationPolicy{
		DisplayName:  "HQ",
		Latitude:     siteLat,
		Longitude:    siteLon,
		RadiusMeters: 100,
		Active:       true,
	}
}

func TestAttemptPunchGeoOnlyAccepted(t *testing.T) {
	f := newFixture(t, &fixedProvider{lat: 29.3760, lon: 47.9775}, basicPolicy())

	rec, rej, err := f.svc.AttemptPunch(context.Background(), PunchRequest{
		EmployeeID: uuid.New(),
		SiteID:     f.siteID,
		EventType:  models.EventCheckIn,
		DeviceInfo: "test device",
	})
	require.NoError(t, err)
	require.Nil(t, rej)
	require.NotNil(t, rec)

	assert.True(t, rec.LocationVerified)
	assert.Equal(t, models.MethodGeoOnly, rec.VerificationMethod)
	assert.NotNil(t, rec.DistanceMeters)
	assert.Less(t, *rec.DistanceMeters, 20.0)
	assert.Len(t, f.punches.records, 1)

	events := f.audit.punchEvents()
	require.Len(t, events, 1)
	assert.True(t, events[0].Accepted)
}

func TestAttemptPunchOutOfRange(t *testing.T) {
	policy := basicPolicy()
	policy.RadiusMeters = 50
	// ~200 m north of the site
	f := newFixture(t, &fixedProvider{lat: siteLat + 0.0018, lon: siteLon}, policy)

	rec, rej, err := f.svc.AttemptPunch(context.Background(), PunchRequest{
		EmployeeID: uuid.New(),
		SiteID:     f.siteID,
		EventType:  models.EventCheckIn,
	})
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonOutOfRange, rej.Reason)
	require.NotNil(t, rej.DistanceMeters)
	assert.InDelta(t, 200, *rej.DistanceMeters, 10)

	// no record was created
	assert.Empty(t, f.punches.records)
}

func TestAttemptPunchWithBiometricMatch(t *testing.T) {
	policy := basicPolicy()
	policy.BiometricRequired = true
	policy.BiometricMandatory = true
	f := newFixture(t, &fixedProvider{lat: siteLat, lon: siteLon}, policy)

	employeeID := uuid.New()

	// enroll
	_, err := f.svc.BeginEnrollment(context.Background(), employeeID)
	require.NoError(t, err)
	for _, pose := range []capture.PoseLabel{capture.PoseFront, capture.PoseLeft, capture.PoseRight, capture.PoseUp, capture.PoseDown} {
		require.NoError(t, f.probeAndCapture(employeeID, pose))
	}
	_, err = f.svc.CompleteEnrollment(context.Background(), employeeID, "enroll kiosk")
	require.NoError(t, err)

	// verification capture
	_, err = f.svc.BeginVerification(context.Background(), employeeID)
	require.NoError(t, err)
	require.NoError(t, f.probeAndCapture(employeeID, capture.PoseFront))

	rec, rej, err := f.svc.AttemptPunch(context.Background(), PunchRequest{
		EmployeeID: employeeID,
		SiteID:     f.siteID,
		EventType:  models.EventCheckOut,
	})
	require.NoError(t, err)
	require.Nil(t, rej)
	require.NotNil(t, rec)

	assert.True(t, rec.BiometricVerified)
	assert.Equal(t, models.MethodGeoAndBiometric, rec.VerificationMethod)
	require.NotNil(t, rec.BiometricConfidence)
	assert.Equal(t, 100.0, *rec.BiometricConfidence)
}

func (f *fixture) probeAndCapture(employeeID uuid.UUID, pose capture.PoseLabel) error {
	session, err := f.svc.captures.Get(employeeID)
	if err != nil {
		return err
	}
	if err := session.Probe(context.Background()); err != nil {
		return err
	}
	return session.CapturePose(context.Background(), pose)
}

func TestAttemptPunchMandatoryBiometricWithoutCapture(t *testing.T) {
	policy := basicPolicy()
	policy.BiometricRequired = true
	policy.BiometricMandatory = true
	f := newFixture(t, &fixedProvider{lat: siteLat, lon: siteLon}, policy)

	employeeID := uuid.New()
	f.faces.profiles[employeeID] = &models.FaceProfile{
		ID:         uuid.New(),
		EmployeeID: employeeID,
		Descriptor: f.embedder.desc,
		Primary:    true,
	}

	rec, rej, err := f.svc.AttemptPunch(context.Background(), PunchRequest{
		EmployeeID: employeeID,
		SiteID:     f.siteID,
		EventType:  models.EventCheckIn,
	})
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonBiometricRequired, rej.Reason)
}

func TestAttemptPunchHardwareCredentialSubstitute(t *testing.T) {
	policy := basicPolicy()
	policy.BiometricRequired = true
	policy.BiometricMandatory = true
	f := newFixture(t, &fixedProvider{lat: siteLat, lon: siteLon}, policy)

	employeeID := uuid.New()
	f.faces.profiles[employeeID] = &models.FaceProfile{
		ID:         uuid.New(),
		EmployeeID: employeeID,
		Descriptor: f.embedder.desc,
		Primary:    true,
	}

	rec, rej, err := f.svc.AttemptPunch(context.Background(), PunchRequest{
		EmployeeID:       employeeID,
		SiteID:           f.siteID,
		EventType:        models.EventCheckIn,
		HardwareVerified: true,
	})
	require.NoError(t, err)
	require.Nil(t, rej)
	require.NotNil(t, rec)
	assert.Equal(t, models.MethodHardwareCredential, rec.VerificationMethod)
}

func TestAttemptPunchNoLocationFix(t *testing.T) {
	f := newFixture(t, &fixedProvider{err: location.ErrPermissionDenied}, basicPolicy())

	rec, rej, err := f.svc.AttemptPunch(context.Background(), PunchRequest{
		EmployeeID: uuid.New(),
		SiteID:     f.siteID,
		EventType:  models.EventCheckIn,
	})
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonNoLocationFix, rej.Reason)
}

func TestAttemptPunchUnknownSite(t *testing.T) {
	f := newFixture(t, &fixedProvider{lat: siteLat, lon: siteLon}, basicPolicy())

	rec, rej, err := f.svc.AttemptPunch(context.Background(), PunchRequest{
		EmployeeID: uuid.New(),
		SiteID:     uuid.New(),
		EventType:  models.EventCheckIn,
	})
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonPolicyNotFound, rej.Reason)
}

func TestCompleteEnrollmentReplacesPrimary(t *testing.T) {
	f := newFixture(t, &fixedProvider{lat: siteLat, lon: siteLon}, basicPolicy())
	employeeID := uuid.New()

	_, err := f.svc.BeginEnrollment(context.Background(), employeeID)
	require.NoError(t, err)
	for _, pose := range []capture.PoseLabel{capture.PoseFront, capture.PoseLeft, capture.PoseRight, capture.PoseUp, capture.PoseDown} {
		require.NoError(t, f.probeAndCapture(employeeID, pose))
	}

	profile, err := f.svc.CompleteEnrollment(context.Background(), employeeID, "kiosk-1")
	require.NoError(t, err)
	assert.True(t, profile.Primary)
	assert.Len(t, profile.Descriptor, 128)

	stored, err := f.faces.GetPrimary(context.Background(), employeeID)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, stored.ID)

	// the capture session was torn down
	_, err = f.svc.captures.Get(employeeID)
	assert.ErrorIs(t, err, capture.ErrNoActiveSession)
}

func TestCompleteEnrollmentWithoutSessionFails(t *testing.T) {
	f := newFixture(t, &fixedProvider{lat: siteLat, lon: siteLon}, basicPolicy())
	_, err := f.svc.CompleteEnrollment(context.Background(), uuid.New(), "kiosk-1")
	assert.ErrorIs(t, err, capture.ErrNoActiveSession)
}
