package shared

import (
	"errors"
	"net/http"

	"attest/internal/transport/http/json"
	dErrors "attest/pkg/domain-errors"
)

// WriteError centralizes domain error translation to HTTP responses.
// It translates transport-agnostic domain errors into HTTP status codes and
// error envelopes, so handlers never hand-pick status codes.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		response := map[string]string{
			"error": string(domainErr.Code),
		}
		if domainErr.Message != "" {
			response["error_description"] = domainErr.Message
		}
		json.WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), response)
		return
	}

	// Fallback for unexpected errors
	json.WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": string(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeValidation, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case dErrors.CodeExpiredToken:
		return http.StatusGone
	case dErrors.CodeLedgerUnavailable, dErrors.CodeContentStoreUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeInternal, dErrors.CodeInvariantViolation, dErrors.CodeIndexWrite:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
