package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/veritime/attendance-service/internal/credential"
	"github.com/veritime/attendance-service/internal/middleware"
	"github.com/veritime/attendance-service/internal/service"
	"github.com/veritime/attendance-service/internal/telemetry"
)

// CredentialHandler exposes hardware credential registration and
// authentication.
type CredentialHandler struct {
	auth  *credential.Authenticator
	audit service.AuditPublisher
}

func NewCredentialHandler(auth *credential.Authenticator, audit service.AuditPublisher) *CredentialHandler {
	return &CredentialHandler{auth: auth, audit: audit}
}

// BeginRegistration issues a registration challenge.
func (h *CredentialHandler) BeginRegistration(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.EmployeeFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing employee identity")
		return
	}

	challenge, err := h.auth.BeginRegistration(r.Context(), employeeID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to issue challenge")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"challenge": challenge})
}

// FinishRegistration verifies the attestation and stores the credential.
func (h *CredentialHandler) FinishRegistration(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.EmployeeFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing employee identity")
		return
	}

	var resp credential.RegistrationResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cred, err := h.auth.FinishRegistration(r.Context(), employeeID, resp)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrInvalidState):
			writeJSONError(w, http.StatusConflict, "credential already registered on this device")
		case errors.Is(err, credential.ErrChallengeExpired):
			writeJSONError(w, http.StatusGone, "challenge expired, restart registration")
		case errors.Is(err, credential.ErrUnsupportedAlgorithm):
			writeJSONError(w, http.StatusBadRequest, "authenticator algorithm not supported")
		case errors.Is(err, credential.ErrSignatureInvalid), errors.Is(err, credential.ErrRelyingPartyMismatch):
			writeJSONError(w, http.StatusBadRequest, "attestation verification failed")
		default:
			writeJSONError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	h.audit.Publish(telemetry.CredentialAuditEvent{
		EmployeeID:   employeeID,
		CredentialID: cred.CredentialID,
		Action:       "registered",
		At:           time.Now().UTC(),
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"credential_id": cred.CredentialID,
		"registered_at": cred.RegisteredAt,
	})
}

// BeginAuthentication issues an authentication challenge.
func (h *CredentialHandler) BeginAuthentication(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.EmployeeFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing employee identity")
		return
	}

	challenge, err := h.auth.BeginAuthentication(r.Context(), employeeID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to issue challenge")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"challenge": challenge})
}

// FinishAuthentication verifies an assertion. A signature-counter
// regression is surfaced as 403 and the credential is flagged for
// administrative review; the client must not retry it.
func (h *CredentialHandler) FinishAuthentication(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := middleware.EmployeeFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing employee identity")
		return
	}

	var resp credential.AssertionResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cred, err := h.auth.FinishAuthentication(r.Context(), employeeID, resp)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrPossibleCredentialClone):
			h.audit.Publish(telemetry.CredentialAuditEvent{
				EmployeeID:   employeeID,
				CredentialID: resp.CredentialID,
				Action:       "clone_flagged",
				At:           time.Now().UTC(),
			})
			writeJSONError(w, http.StatusForbidden, "credential flagged: possible clone detected")
		case errors.Is(err, credential.ErrCredentialFlagged):
			writeJSONError(w, http.StatusForbidden, "credential is under administrative review")
		case errors.Is(err, credential.ErrCredentialNotFound):
			writeJSONError(w, http.StatusNotFound, "credential not registered for employee")
		case errors.Is(err, credential.ErrChallengeExpired):
			writeJSONError(w, http.StatusGone, "challenge expired, restart authentication")
		case errors.Is(err, credential.ErrSignatureInvalid), errors.Is(err, credential.ErrRelyingPartyMismatch):
			writeJSONError(w, http.StatusUnauthorized, "assertion verification failed")
		default:
			writeJSONError(w, http.StatusInternalServerError, "authentication failed")
		}
		return
	}

	h.audit.Publish(telemetry.CredentialAuditEvent{
		EmployeeID:   employeeID,
		CredentialID: cred.CredentialID,
		Action:       "authenticated",
		Counter:      cred.SignatureCounter,
		At:           time.Now().UTC(),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"verified":      true,
		"credential_id": cred.CredentialID,
	})
}
