package capture

import (
	"context"
	"errors"

	"github.com/veritime/attendance-service/internal/biometric"
)

var (
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrDeviceUnavailable = errors.New("camera device unavailable")
)

// CameraProvider abstracts device video capture. The active session owns the
// returned stream exclusively and is responsible for closing it on every
// exit path.
type CameraProvider interface {
	Open(ctx context.Context) (FrameStream, error)
}

// FrameStream yields frames from an open camera.
type FrameStream interface {
	Frame(ctx context.Context) (biometric.Frame, error)
	Close() error
}
