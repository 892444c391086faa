package service

import "github.com/veritime/attendance-service/internal/models"

// RejectionReason names the specific precondition a punch failed on, so the
// user retries that step instead of seeing one generic error.
type RejectionReason string

const (
	ReasonOutOfRange         RejectionReason = "OUT_OF_RANGE"
	ReasonNoLocationFix      RejectionReason = "NO_LOCATION_FIX"
	ReasonLowConfidenceMatch RejectionReason = "LOW_CONFIDENCE_MATCH"
	ReasonBiometricRequired  RejectionReason = "BIOMETRIC_REQUIRED"
	ReasonPolicyNotFound     RejectionReason = "POLICY_NOT_FOUND"
)

// Rejection is the non-accepting outcome of a punch attempt.
type Rejection struct {
	Reason         RejectionReason `json:"reason"`
	Detail         string          `json:"detail,omitempty"`
	DistanceMeters *float64        `json:"distance_meters,omitempty"`
}

// Signals are the verification inputs the decision engine combines.
type Signals struct {
	LocationOK     bool
	DistanceMeters *float64

	BiometricRequired  bool
	BiometricMandatory bool
	ProfileExists      bool
	BiometricAttempted bool // a completed verification capture was presented
	BiometricOK        bool
	Confidence         *float64

	HardwareOK bool // a hardware credential assertion validated this attempt
}

// Decision is the engine's output: accept/reject plus classification.
type Decision struct {
	Accept    bool
	Method    models.VerificationMethod
	Rejection *Rejection
}

// Decide combines the geofence, biometric and hardware credential signals
// under the site policy. Location must always pass. Biometric passes when
// the policy does not require it, when the employee has no enrolled profile,
// when the match verified, or when capture is absent and the policy does not
// make biometrics mandatory.
func Decide(s Signals) Decision {
	if !s.LocationOK {
		return Decision{Rejection: &Rejection{
			Reason:         ReasonOutOfRange,
			Detail:         "reported position is outside the site geofence",
			DistanceMeters: s.DistanceMeters,
		}}
	}

	biometricOK := true
	biometricUsed := false
	switch {
	case !s.BiometricRequired:
	case !s.ProfileExists:
		// nothing enrolled to match against
	case s.BiometricAttempted:
		biometricOK = s.BiometricOK
		biometricUsed = s.BiometricOK
	case s.HardwareOK:
		// hardware credential substitutes for the face match
	case !s.BiometricMandatory:
		// capture unavailable and the policy tolerates absence
	default:
		biometricOK = false
	}

	if !biometricOK {
		if s.BiometricAttempted {
			return Decision{Rejection: &Rejection{
				Reason:         ReasonLowConfidenceMatch,
				Detail:         "face match confidence below the acceptance threshold",
				DistanceMeters: s.DistanceMeters,
			}}
		}
		return Decision{Rejection: &Rejection{
			Reason: ReasonBiometricRequired,
			Detail: "site policy requires biometric verification for this punch",
		}}
	}

	return Decision{
		Accept: true,
		Method: classify(s.LocationOK, biometricUsed, s.HardwareOK),
	}
}

func classify(locationOK, biometricUsed, hardwareUsed bool) models.VerificationMethod {
	switch {
	case locationOK && biometricUsed:
		return models.MethodGeoAndBiometric
	case hardwareUsed:
		return models.MethodHardwareCredential
	case locationOK:
		return models.MethodGeoOnly
	case biometricUsed:
		return models.MethodBiometricOnly
	default:
		return models.MethodManual
	}
}
