package biometric

import (
	"math"

	"github.com/veritime/attendance-service/internal/config"
)

// MatchResult is the outcome of comparing a live descriptor against an
// enrolled one.
type MatchResult struct {
	Confidence float64 // 0..100
	Distance   float64
	Verified   bool
}

// Matcher compares descriptors under configured thresholds. The reference
// thresholds (0.6 distance, 70 match) belong to the placeholder embedder;
// swapping the embedder means recalibrating both.
type Matcher struct {
	distanceThreshold float64
	matchThreshold    float64
}

func NewMatcher(cfg config.BiometricConfig) *Matcher {
	dt := cfg.DistanceThreshold
	if dt <= 0 {
		dt = 0.6
	}
	mt := cfg.MatchThreshold
	if mt <= 0 {
		mt = 70
	}
	return &Matcher{distanceThreshold: dt, matchThreshold: mt}
}

// Compare maps Euclidean distance between a and b to a confidence in
// [0,100]. Identical descriptors score 100.
func (m *Matcher) Compare(a, b []float64) (MatchResult, error) {
	if len(a) != len(b) || len(a) == 0 {
		return MatchResult{}, ErrDimensionMismatch
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	distance := math.Sqrt(sum)

	confidence := (1 - distance/m.distanceThreshold) * 100
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	return MatchResult{
		Confidence: confidence,
		Distance:   distance,
		Verified:   confidence >= m.matchThreshold,
	}, nil
}

// MatchThreshold exposes the configured acceptance bar, used by callers to
// report how far a failed match fell short.
func (m *Matcher) MatchThreshold() float64 { return m.matchThreshold }
