package biometric

import "errors"

var (
	ErrNoFaceDetected    = errors.New("no face detected in frame")
	ErrLowImageQuality   = errors.New("image quality too low for extraction")
	ErrDimensionMismatch = errors.New("descriptor dimension mismatch")
)

// Frame is a single grayscale camera frame. Pix is row-major, one byte per
// pixel.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// Region is a rectangle inside a frame, the detected face bounding box.
type Region struct {
	X, Y, W, H int
}

// FaceDetector reports whether a frame contains a face and where. The
// capture session polls this on a fixed cadence while prompting the user.
type FaceDetector interface {
	Detect(f Frame) (Region, bool)
}

// FaceEmbedder turns a frame into a fixed-dimension normalized descriptor.
// Implementations are swappable; neither the capture session nor the
// decision engine depends on how the embedding is computed.
type FaceEmbedder interface {
	ExtractDescriptor(f Frame) ([]float64, error)
	Dimension() int
}
