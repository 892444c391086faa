package geofence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceSymmetry(t *testing.T) {
	pairs := [][4]float64{
		{29.3759, 47.9774, 29.3760, 47.9775},
		{0, 0, 10, 10},
		{-33.8688, 151.2093, 51.5074, -0.1278},
		{89.9, 179.9, -89.9, -179.9},
	}
	for _, p := range pairs {
		ab, err := Distance(p[0], p[1], p[2], p[3])
		require.NoError(t, err)
		ba, err := Distance(p[2], p[3], p[0], p[1])
		require.NoError(t, err)
		assert.InDelta(t, ab, ba, 1e-9)
	}
}

func TestDistanceIdentityIsZero(t *testing.T) {
	d, err := Distance(29.3759, 47.9774, 29.3759, 47.9774)
	require.NoError(t, err)
	assert.Zero(t, d)
}

func TestVerifyInsideRadius(t *testing.T) {
	// Site in Kuwait City, user one street over.
	res, err := Verify(29.3760, 47.9775, 29.3759, 47.9774, 100)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Less(t, res.DistanceMeters, 20.0)
}

func TestVerifyOutsideRadius(t *testing.T) {
	// ~1.1 km north of the site.
	res, err := Verify(29.3859, 47.9774, 29.3759, 47.9774, 100)
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Greater(t, res.DistanceMeters, 1000.0)
}

func TestVerifyMonotonicInRadius(t *testing.T) {
	radii := []float64{10, 50, 100, 500, 1000, 2000}
	wasVerified := false
	for _, r := range radii {
		res, err := Verify(29.3859, 47.9774, 29.3759, 47.9774, r)
		require.NoError(t, err)
		if wasVerified {
			// growing the radius must never flip a pass back to fail
			assert.True(t, res.Verified, "radius %v", r)
		}
		wasVerified = res.Verified
	}
}

func TestVerifyRejectsInvalidCoordinates(t *testing.T) {
	cases := [][4]float64{
		{91, 0, 0, 0},
		{-91, 0, 0, 0},
		{0, 181, 0, 0},
		{0, 0, 45, -200},
	}
	for _, c := range cases {
		_, err := Verify(c[0], c[1], c[2], c[3], 100)
		assert.ErrorIs(t, err, ErrInvalidCoordinate)
	}
}

func TestVerifyRejectsNonPositiveRadius(t *testing.T) {
	_, err := Verify(29.3759, 47.9774, 29.3759, 47.9774, 0)
	assert.Error(t, err)
}
