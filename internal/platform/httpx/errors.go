package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
)

// StatusFor maps a domain error to its HTTP status code.
func StatusFor(err error) int {
	var missing *broker.ServiceNotFoundError
	switch {
	case errors.Is(err, shared.ErrNotFound), errors.As(err, &missing):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrPrivileges):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrMethodNotAllowed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807. Internal
// errors keep their detail out of the response unless they are configuration
// errors, which name the offending declaration.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError && !errors.Is(err, shared.ErrConfiguration) {
		detail = ""
	}
	Problem(w, status, http.StatusText(status), detail)
}
