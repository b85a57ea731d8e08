package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated indicates a missing, malformed or expired credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the caller lacks a required role or permission.
	ErrForbidden = errors.New("forbidden")
	// ErrResolution indicates the authorization data store was unreachable.
	// Authorization fails closed: callers must map this to 503, never to a grant.
	ErrResolution = errors.New("authorization data unavailable")
)
