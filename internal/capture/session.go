package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/veritime/attendance-service/internal/biometric"
	"github.com/veritime/attendance-service/internal/config"
	"github.com/veritime/attendance-service/internal/util/logger"
)

var (
	ErrNotCapturable   = errors.New("capture not available in current state")
	ErrSessionFinished = errors.New("session already finished")
	ErrPoseOrder       = errors.New("poses must be captured in order")
)

// PoseLabel names a required head pose.
type PoseLabel string

const (
	PoseFront PoseLabel = "front"
	PoseLeft  PoseLabel = "left"
	PoseRight PoseLabel = "right"
	PoseUp    PoseLabel = "up"
	PoseDown  PoseLabel = "down"
)

// Mode selects the pose sequence.
type Mode int

const (
	ModeEnrollment Mode = iota
	ModeVerification
)

func requiredPoses(m Mode) []PoseLabel {
	if m == ModeVerification {
		return []PoseLabel{PoseFront}
	}
	return []PoseLabel{PoseFront, PoseLeft, PoseRight, PoseUp, PoseDown}
}

// State is the session's lifecycle state.
type State int

const (
	StateInitializing State = iota
	StateReady
	StatePrompting
	StateDetecting
	StateCaptured
	StateComplete
	StateError
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StatePrompting:
		return "PROMPTING"
	case StateDetecting:
		return "DETECTING"
	case StateCaptured:
		return "CAPTURED"
	case StateComplete:
		return "COMPLETE"
	case StateError:
		return "ERROR"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "INITIALIZING"
	}
}

// DetectionState is the result of the most recent probe.
type DetectionState int

const (
	NoFace DetectionState = iota
	FaceDetected
)

// CameraState tracks the camera acquisition.
type CameraState int

const (
	CameraInitializing CameraState = iota
	CameraReady
	CameraError
)

// Session drives a camera feed through the required pose sequence. It is
// ephemeral: created when the capture UI opens, destroyed when it closes,
// completes or errors. The camera stream is owned exclusively by the session
// and released on every exit path.
type Session struct {
	mode   Mode
	camera CameraProvider
	loader *Loader
	det    biometric.FaceDetector
	emb    biometric.FaceEmbedder
	cfg    config.CaptureConfig

	mu          sync.Mutex
	state       State
	errReason   error
	poses       []PoseLabel
	captured    map[PoseLabel][]float64
	currentIdx  int
	detection   DetectionState
	cameraState CameraState
	stream      FrameStream
}

func NewSession(mode Mode, camera CameraProvider, loader *Loader, det biometric.FaceDetector, emb biometric.FaceEmbedder, cfg config.CaptureConfig) *Session {
	return &Session{
		mode:     mode,
		camera:   camera,
		loader:   loader,
		det:      det,
		emb:      emb,
		cfg:      cfg,
		state:    StateInitializing,
		poses:    requiredPoses(mode),
		captured: make(map[PoseLabel][]float64),
	}
}

// Start brings the model and camera up and enters Prompting for the first
// pose. Any failure lands in StateError with the camera released.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateInitializing {
		s.mu.Unlock()
		return ErrSessionFinished
	}
	s.mu.Unlock()

	if err := s.loader.Ensure(ctx); err != nil {
		s.fail(err)
		return err
	}

	stream, err := s.camera.Open(ctx)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.stream = stream
	s.cameraState = CameraReady
	s.state = StatePrompting
	s.mu.Unlock()
	return nil
}

// Probe samples the current frame and updates the detection state. Called on
// a fixed cadence while the session is prompting or detecting.
func (s *Session) Probe(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StatePrompting && s.state != StateDetecting {
		s.mu.Unlock()
		return nil
	}
	stream := s.stream
	s.mu.Unlock()

	frame, err := stream.Frame(ctx)
	if err != nil {
		s.fail(err)
		return err
	}

	_, found := s.det.Detect(frame)

	s.mu.Lock()
	if s.state == StatePrompting || s.state == StateDetecting {
		s.state = StateDetecting
		if found {
			s.detection = FaceDetected
		} else {
			s.detection = NoFace
		}
	}
	s.mu.Unlock()
	return nil
}

// RunProbeLoop probes at the configured interval until the session leaves
// the detecting states or ctx ends.
func (s *Session) RunProbeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.State()
			if st != StatePrompting && st != StateDetecting {
				return
			}
			if err := s.Probe(ctx); err != nil {
				return
			}
		}
	}
}

// CanCapture reports whether the capture action is enabled: camera ready,
// models ready, face currently detected.
func (s *Session) CanCapture() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cameraState == CameraReady &&
		s.loader.State() == ModelReady &&
		s.detection == FaceDetected &&
		(s.state == StateDetecting)
}

// Capture extracts a descriptor for the active pose and advances the
// sequence. A frame with no face returns the session to Detecting without
// advancing. Completing the final pose releases the camera; an intermediate
// pose restarts it so the next pose starts from a fresh frame pipeline.
func (s *Session) Capture(ctx context.Context) error {
	if !s.CanCapture() {
		return ErrNotCapturable
	}

	s.mu.Lock()
	stream := s.stream
	pose := s.poses[s.currentIdx]
	s.mu.Unlock()

	frame, err := stream.Frame(ctx)
	if err != nil {
		s.fail(err)
		return err
	}

	desc, err := s.emb.ExtractDescriptor(frame)
	if err != nil {
		// non-fatal: face left the frame between probe and capture
		s.mu.Lock()
		if s.state == StateDetecting {
			s.detection = NoFace
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.captured[pose] = desc
	s.state = StateCaptured
	s.currentIdx++
	last := s.currentIdx >= len(s.poses)
	s.mu.Unlock()

	if last {
		s.finish(StateComplete)
		return nil
	}

	// fresh stream for the next pose
	if err := s.restartCamera(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = StatePrompting
	s.detection = NoFace
	s.mu.Unlock()
	return nil
}

// CapturePose captures for an explicitly named pose. The sequence is fixed:
// naming any pose other than the active one is rejected without touching
// session state.
func (s *Session) CapturePose(ctx context.Context, pose PoseLabel) error {
	cur, err := s.CurrentPose()
	if err != nil {
		return err
	}
	if pose != cur {
		return ErrPoseOrder
	}
	return s.Capture(ctx)
}

func (s *Session) restartCamera(ctx context.Context) error {
	s.mu.Lock()
	old := s.stream
	s.stream = nil
	s.cameraState = CameraInitializing
	s.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			logger.Warnf("camera close during pose transition: %v", err)
		}
	}

	stream, err := s.camera.Open(ctx)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.stream = stream
	s.cameraState = CameraReady
	s.mu.Unlock()
	return nil
}

// Cancel aborts the session and releases the camera.
func (s *Session) Cancel() {
	s.finish(StateCancelled)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Detection returns the latest probe result.
func (s *Session) Detection() DetectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detection
}

// CurrentPose returns the pose the user is being prompted for.
func (s *Session) CurrentPose() (PoseLabel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentIdx >= len(s.poses) {
		return "", ErrSessionFinished
	}
	return s.poses[s.currentIdx], nil
}

// Err returns the failure that moved the session to StateError, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errReason
}

// Descriptors returns the captured descriptors by pose. Only meaningful once
// the session is Complete.
func (s *Session) Descriptors() (map[PoseLabel][]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateComplete {
		return nil, fmt.Errorf("session not complete: %s", s.state)
	}
	out := make(map[PoseLabel][]float64, len(s.captured))
	for k, v := range s.captured {
		out[k] = v
	}
	return out, nil
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state == StateError || s.state == StateCancelled || s.state == StateComplete {
		s.mu.Unlock()
		return
	}
	s.errReason = err
	s.mu.Unlock()
	s.finish(StateError)
}

// finish moves to a terminal state and releases the camera unconditionally.
func (s *Session) finish(terminal State) {
	s.mu.Lock()
	if s.state == StateComplete || s.state == StateCancelled || (s.state == StateError && terminal != StateError) {
		s.mu.Unlock()
		return
	}
	s.state = terminal
	stream := s.stream
	s.stream = nil
	s.cameraState = CameraInitializing
	s.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			logger.Warnf("camera release on %s: %v", terminal, err)
		}
	}
}
