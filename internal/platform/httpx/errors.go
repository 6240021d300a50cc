package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrExpired):
		return http.StatusGone
	case errors.Is(err, shared.ErrAlreadyAccepted), errors.Is(err, shared.ErrAlreadyRevoked), errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// CodeFor returns a stable machine-readable code for err.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, shared.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, shared.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, shared.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, shared.ErrExpired):
		return "expired"
	case errors.Is(err, shared.ErrAlreadyAccepted):
		return "already_accepted"
	case errors.Is(err, shared.ErrAlreadyRevoked):
		return "already_revoked"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrValidation):
		return "validation_failed"
	default:
		return "internal"
	}
}

// RespondError writes the failure envelope for err.
func RespondError(w http.ResponseWriter, err error) {
	JSON(w, StatusFor(err), Failure{
		Success: false,
		Error:   shared.UserSafeMessage(err),
		Code:    CodeFor(err),
	})
}
