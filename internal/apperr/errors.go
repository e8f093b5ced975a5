package apperr

import (
	"errors"
	"net/http"
)

// Root error classes. Package-level sentinels wrap exactly one of these with %w
// so callers can classify with errors.Is without knowing the concrete sentinel.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrTransientDelivery = errors.New("transient delivery error")
)

// HTTPStatus maps an error to the status code the API layer should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrTransientDelivery):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Public reports whether the error message is safe to show to API callers.
// Anything outside the taxonomy is an internal failure and gets a generic message.
func Public(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrTransientDelivery)
}
