package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/veritime/attendance-service/internal/biometric"
	"github.com/veritime/attendance-service/internal/config"
	"github.com/veritime/attendance-service/internal/util/logger"
)

var ErrNoActiveSession = errors.New("no active capture session")

// Manager owns at most one capture session per employee. Beginning a new
// session cancels any session the employee already has, so a camera stream
// can never leak across navigations.
type Manager struct {
	camera CameraProvider
	source ModelSource
	det    biometric.FaceDetector
	emb    biometric.FaceEmbedder
	cfg    config.CaptureConfig

	mu       sync.Mutex
	sessions map[uuid.UUID]*managed
}

type managed struct {
	session *Session
	cancel  context.CancelFunc
}

func NewManager(camera CameraProvider, source ModelSource, det biometric.FaceDetector, emb biometric.FaceEmbedder, cfg config.CaptureConfig) *Manager {
	return &Manager{
		camera:   camera,
		source:   source,
		det:      det,
		emb:      emb,
		cfg:      cfg,
		sessions: make(map[uuid.UUID]*managed),
	}
}

// Begin starts a session for the employee, cancelling any prior one. The
// probe loop runs until the session reaches a terminal state or the returned
// session is cancelled.
func (m *Manager) Begin(ctx context.Context, employeeID uuid.UUID, mode Mode) (*Session, error) {
	m.mu.Lock()
	if prev, ok := m.sessions[employeeID]; ok {
		logger.Infof("cancelling stale capture session for employee %s", employeeID)
		prev.session.Cancel()
		prev.cancel()
		delete(m.sessions, employeeID)
	}
	m.mu.Unlock()

	loader := NewLoader(m.source, m.cfg)
	session := NewSession(mode, m.camera, loader, m.det, m.emb, m.cfg)

	if err := session.Start(ctx); err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	go session.RunProbeLoop(loopCtx)

	m.mu.Lock()
	m.sessions[employeeID] = &managed{session: session, cancel: cancel}
	m.mu.Unlock()
	return session, nil
}

// Get returns the employee's active session.
func (m *Manager) Get(employeeID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[employeeID]
	if !ok {
		return nil, ErrNoActiveSession
	}
	return entry.session, nil
}

// End cancels and removes the employee's session if one exists.
func (m *Manager) End(employeeID uuid.UUID) {
	m.mu.Lock()
	entry, ok := m.sessions[employeeID]
	if ok {
		delete(m.sessions, employeeID)
	}
	m.mu.Unlock()

	if ok {
		entry.session.Cancel()
		entry.cancel()
	}
}
