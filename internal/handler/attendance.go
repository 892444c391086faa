package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/veritime/attendance-service/internal/biometric"
	"github.com/veritime/attendance-service/internal/capture"
	"github.com/veritime/attendance-service/internal/location"
	"github.com/veritime/attendance-service/internal/middleware"
	"github.com/veritime/attendance-service/internal/models"
	"github.com/veritime/attendance-service/internal/repository"
	"github.com/veritime/attendance-service/internal/service"
)

// AttendanceHandler exposes the capture and punch operations to the
// attendance UI.
type AttendanceHandler struct {
	svc *service.AttendanceService
}

func NewAttendanceHandler(svc *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{svc: svc}
}

type sessionResponse struct {
	State       string `json:"state"`
	CurrentPose string `json:"current_pose,omitempty"`
	Detection   string `json:"detection"`
}

func sessionPayload(s *capture.Session) sessionResponse {
	resp := sessionResponse{
		State: s.State().String(),
	}
	if pose, err := s.CurrentPose(); err == nil {
		resp.CurrentPose = string(pose)
	}
	if s.Detection() == capture.FaceDetected {
		resp.Detection = "FACE_DETECTED"
	} else {
		resp.Detection = "NO_FACE"
	}
	return resp
}

// BeginEnrollment opens a five-pose enrollment capture session.
func (h *AttendanceHandler) BeginEnrollment(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.EmployeeFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing employee identity")
		return
	}

	session, err := h.svc.BeginEnrollment(r.Context(), employeeID)
	if err != nil {
		writeCaptureError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

// BeginVerification opens a single-pose verification capture session.
func (h *AttendanceHandler) BeginVerification(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.EmployeeFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing employee identity")
		return
	}

	session, err := h.svc.BeginVerification(r.Context(), employeeID)
	if err != nil {
		writeCaptureError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

type captureRequest struct {
	Pose string `json:"pose"`
}

// SubmitCapture performs the capture action for the named pose.
func (h *AttendanceHandler) SubmitCapture(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.EmployeeFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing employee identity")
		return
	}

	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.svc.SubmitCapture(r.Context(), employeeID, capture.PoseLabel(req.Pose))
	if err != nil {
		switch {
		case errors.Is(err, capture.ErrNoActiveSession):
			writeJSONError(w, http.StatusNotFound, "no active capture session")
		case errors.Is(err, capture.ErrPoseOrder):
			writeJSONError(w, http.StatusConflict, "poses must be captured in order")
		case errors.Is(err, capture.ErrNotCapturable):
			writeJSONError(w, http.StatusConflict, "capture not available, face not detected")
		case errors.Is(err, biometric.ErrNoFaceDetected), errors.Is(err, biometric.ErrLowImageQuality):
			// retryable: session stays alive
			writeJSON(w, http.StatusAccepted, map[string]any{
				"retry":   true,
				"reason":  err.Error(),
				"session": sessionPayload(session),
			})
		default:
			writeCaptureError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

// CancelCapture aborts the active session.
func (h *AttendanceHandler) CancelCapture(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.EmployeeFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing employee identity")
		return
	}
	h.svc.CancelCapture(employeeID)
	w.WriteHeader(http.StatusNoContent)
}

// CompleteEnrollment stores the captured descriptor as the new primary
// profile.
func (h *AttendanceHandler) CompleteEnrollment(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.EmployeeFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing employee identity")
		return
	}

	profile, err := h.svc.CompleteEnrollment(r.Context(), employeeID, middleware.DeviceInfoFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, capture.ErrNoActiveSession), errors.Is(err, service.ErrNoEnrollment):
			writeJSONError(w, http.StatusConflict, "enrollment capture not complete")
		default:
			writeJSONError(w, http.StatusInternalServerError, "failed to store profile")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"profile_id":  profile.ID,
		"enrolled_at": profile.EnrolledAt,
	})
}

// GeofenceCheck verifies the employee's current position against a site.
func (h *AttendanceHandler) GeofenceCheck(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.EmployeeFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing employee identity")
		return
	}
	siteID, err := uuid.Parse(r.URL.Query().Get("site_id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid site_id")
		return
	}

	res, err := h.svc.GeofenceCheck(r.Context(), employeeID, siteID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeJSONError(w, http.StatusNotFound, "no active policy for site")
		case errors.Is(err, location.ErrPermissionDenied):
			writeJSONError(w, http.StatusForbidden, "location permission denied")
		case errors.Is(err, location.ErrFixTimeout):
			writeJSONError(w, http.StatusGatewayTimeout, "timed out waiting for position fix")
		case errors.Is(err, location.ErrDeviceUnavailable):
			writeJSONError(w, http.StatusServiceUnavailable, "no positioning hardware available")
		default:
			writeJSONError(w, http.StatusInternalServerError, "geofence check failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"verified":        res.Verified,
		"distance_meters": res.DistanceMeters,
	})
}

type punchRequest struct {
	SiteID           uuid.UUID        `json:"site_id"`
	EventType        models.EventType `json:"event_type"`
	HardwareVerified bool             `json:"hardware_verified"`
}

// AttemptPunch runs the full verification pipeline for a check-in or
// check-out.
func (h *AttendanceHandler) AttemptPunch(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.EmployeeFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing employee identity")
		return
	}

	var req punchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventType != models.EventCheckIn && req.EventType != models.EventCheckOut {
		writeJSONError(w, http.StatusBadRequest, "event_type must be CHECK_IN or CHECK_OUT")
		return
	}

	rec, rejection, err := h.svc.AttemptPunch(r.Context(), service.PunchRequest{
		EmployeeID:       employeeID,
		SiteID:           req.SiteID,
		EventType:        req.EventType,
		DeviceInfo:       middleware.DeviceInfoFromContext(r.Context()),
		HardwareVerified: req.HardwareVerified,
	})
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "punch attempt failed")
		return
	}
	if rejection != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"accepted":  false,
			"rejection": rejection,
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"accepted": true,
		"record":   rec,
	})
}

func writeCaptureError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		writeJSONError(w, http.StatusForbidden, "camera permission denied")
	case errors.Is(err, capture.ErrDeviceUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, "camera unavailable")
	case errors.Is(err, capture.ErrModelLoadTimeout):
		writeJSONError(w, http.StatusGatewayTimeout, "biometric model load timed out")
	default:
		writeJSONError(w, http.StatusInternalServerError, "capture session failed")
	}
}
