// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var details map[string]any
	var de *shared.DomainError
	if errors.As(err, &de) {
		details = de.Details()
	}
	switch {
	case errors.Is(err, shared.ErrNotFound):
		problem(w, http.StatusNotFound, "Not Found", err.Error(), details)
	case errors.Is(err, shared.ErrValidation):
		problem(w, http.StatusBadRequest, "Validation Failed", err.Error(), details)
	case errors.Is(err, shared.ErrForbidden):
		problem(w, http.StatusForbidden, "Forbidden", err.Error(), details)
	case errors.Is(err, shared.ErrInvalidState):
		problem(w, http.StatusConflict, "Invalid State", err.Error(), details)
	case errors.Is(err, shared.ErrOverReceipt):
		problem(w, http.StatusUnprocessableEntity, "Over Receipt", err.Error(), details)
	case errors.Is(err, shared.ErrConflict):
		problem(w, http.StatusConflict, "Conflict", err.Error(), details)
	case errors.Is(err, shared.ErrTimeout):
		w.Header().Set("Retry-After", "1")
		problem(w, http.StatusServiceUnavailable, "Busy", err.Error(), details)
	default:
		problem(w, http.StatusInternalServerError, "Internal Error", "", nil)
	}
}
