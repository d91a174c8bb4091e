// File: internal/infra/api/response.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"elearn-entitlements/internal/domain"
)

// envelope is the uniform response shape of the payment API.
type envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	StatusCode int         `json:"statusCode"`
}

func writeJSON(w http.ResponseWriter, status int, success bool, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success:    success,
		Message:    message,
		Data:       data,
		StatusCode: status,
	})
}

// writeError maps a domain error to the envelope. Internal detail stays
// server-side: the client sees the kind, never wrapped provider context.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAlreadyOwned):
		// Idempotent outcome, not a failure: the subject already holds the
		// entitlement.
		writeJSON(w, http.StatusOK, true, "already owned", nil)
	case errors.Is(err, domain.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, false, "invalid input", nil)
	case errors.Is(err, domain.ErrSignatureInvalid):
		writeJSON(w, http.StatusBadRequest, false, "payment signature invalid", nil)
	case errors.Is(err, domain.ErrUnsupportedReceiptFormat):
		writeJSON(w, http.StatusBadRequest, false, "unsupported receipt format", nil)
	case errors.Is(err, domain.ErrRemoteVerificationFailed):
		writeJSON(w, http.StatusBadRequest, false, "receipt rejected by payment authority", nil)
	case errors.Is(err, domain.ErrTransactionConsumed):
		writeJSON(w, http.StatusBadRequest, false, "transaction already used", nil)
	case errors.Is(err, domain.ErrProofMismatch):
		writeJSON(w, http.StatusBadRequest, false, "payment proof does not match this order", nil)
	case errors.Is(err, domain.ErrProductMismatch):
		writeJSON(w, http.StatusForbidden, false, "receipt is for a different product", nil)
	case errors.Is(err, domain.ErrPaymentRequired):
		writeJSON(w, http.StatusForbidden, false, "payment required", nil)
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, false, "not found", nil)
	case errors.Is(err, domain.ErrRemoteUnavailable):
		writeJSON(w, http.StatusInternalServerError, false, "payment authority unavailable, please retry", nil)
	default:
		writeJSON(w, http.StatusInternalServerError, false, "internal error", nil)
	}
}
