package biometric

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritime/attendance-service/internal/config"
)

func defaultMatcher() *Matcher {
	return NewMatcher(config.BiometricConfig{DistanceThreshold: 0.6, MatchThreshold: 70})
}

func TestCompareIdenticalDescriptor(t *testing.T) {
	m := defaultMatcher()
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 10; i++ {
		d := make([]float64, 128)
		for j := range d {
			d[j] = rng.Float64()
		}
		normalize(d)

		res, err := m.Compare(d, d)
		require.NoError(t, err)
		assert.Equal(t, 100.0, res.Confidence)
		assert.True(t, res.Verified)
		assert.Zero(t, res.Distance)
	}
}

func TestCompareDistantDescriptors(t *testing.T) {
	m := defaultMatcher()
	a := make([]float64, 128)
	b := make([]float64, 128)
	a[0] = 1
	b[1] = 1 // orthogonal unit vectors, distance sqrt(2) > threshold

	res, err := m.Compare(a, b)
	require.NoError(t, err)
	assert.Zero(t, res.Confidence)
	assert.False(t, res.Verified)
}

func TestCompareDimensionMismatch(t *testing.T) {
	m := defaultMatcher()
	_, err := m.Compare(make([]float64, 128), make([]float64, 64))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = m.Compare(nil, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCompareConfidenceClamped(t *testing.T) {
	m := defaultMatcher()
	a := make([]float64, 4)
	b := []float64{10, 10, 10, 10} // far outside the threshold

	res, err := m.Compare(a, b)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 100.0)
}

func testFrame(w, h int, fill func(x, y int) uint8) Frame {
	pix := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix[y*w+x] = fill(x, y)
		}
	}
	return Frame{Width: w, Height: h, Pix: pix}
}

func TestExtractDescriptorDeterministic(t *testing.T) {
	e := NewPixelStatEmbedder(NewCenterVarianceDetector(), 128)
	f := testFrame(160, 120, func(x, y int) uint8 {
		return uint8((x*7 + y*13) % 251)
	})

	d1, err := e.ExtractDescriptor(f)
	require.NoError(t, err)
	d2, err := e.ExtractDescriptor(f)
	require.NoError(t, err)

	assert.Len(t, d1, 128)
	assert.Equal(t, d1, d2)

	// descriptor is L2-normalized
	var norm float64
	for _, v := range d1 {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-9)
}

func TestExtractDescriptorNoFace(t *testing.T) {
	e := NewPixelStatEmbedder(NewCenterVarianceDetector(), 128)
	flat := testFrame(160, 120, func(x, y int) uint8 { return 128 })

	_, err := e.ExtractDescriptor(flat)
	assert.ErrorIs(t, err, ErrNoFaceDetected)
}

func TestExtractDescriptorBadFrame(t *testing.T) {
	e := NewPixelStatEmbedder(NewCenterVarianceDetector(), 128)
	_, err := e.ExtractDescriptor(Frame{Width: 10, Height: 10, Pix: make([]uint8, 5)})
	assert.ErrorIs(t, err, ErrLowImageQuality)
}

func TestSelfMatchAcrossFrames(t *testing.T) {
	e := NewPixelStatEmbedder(NewCenterVarianceDetector(), 128)
	m := defaultMatcher()
	f := testFrame(160, 120, func(x, y int) uint8 {
		return uint8((x*3 + y*11) % 197)
	})

	enrolled, err := e.ExtractDescriptor(f)
	require.NoError(t, err)
	live, err := e.ExtractDescriptor(f)
	require.NoError(t, err)

	res, err := m.Compare(enrolled, live)
	require.NoError(t, err)
	assert.True(t, res.Verified)
}
