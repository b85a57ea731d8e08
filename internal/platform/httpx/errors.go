// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/stocknest/stocknest/internal/shared"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrValidation = errors.New("validation failed")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Resolution failures map to 503: an unreachable authorization store must
// never be reported as a grant or a denial on the merits.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrUnauthenticated):
		Unauthenticated(w, "Could not validate credentials")
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrResolution):
		Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "authorization data temporarily unavailable")
	case errors.Is(err, ErrNotFound), errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// Unauthenticated writes a 401 with the WWW-Authenticate challenge header.
func Unauthenticated(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	Problem(w, http.StatusUnauthorized, "Unauthorized", detail)
}
