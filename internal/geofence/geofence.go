// Package geofence decides whether a reported position lies within a
// configured site radius using great-circle distance.
package geofence

import (
	"errors"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used by the Haversine formula.
const EarthRadiusMeters = 6371000.0

var ErrInvalidCoordinate = errors.New("latitude or longitude out of range")

// Result carries the pass/fail decision together with the measured distance.
// DistanceMeters is rounded to 2 decimals for display; the comparison against
// the radius uses the unrounded value.
type Result struct {
	Verified       bool
	DistanceMeters float64
}

// Verify computes the Haversine distance between the user position and the
// site and compares it against radiusMeters. The radius must be positive.
func Verify(userLat, userLon, siteLat, siteLon, radiusMeters float64) (Result, error) {
	if radiusMeters <= 0 {
		return Result{}, errors.New("radius must be positive")
	}
	d, err := Distance(userLat, userLon, siteLat, siteLon)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Verified:       d <= radiusMeters,
		DistanceMeters: math.Round(d*100) / 100,
	}, nil
}

// Distance returns the great-circle distance in meters between two
// coordinates, unrounded.
func Distance(lat1, lon1, lat2, lon2 float64) (float64, error) {
	if !validCoordinate(lat1, lon1) || !validCoordinate(lat2, lon2) {
		return 0, ErrInvalidCoordinate
	}

	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c, nil
}

func validCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
