// Package token verifies bearer credentials issued by the external identity
// provider and extracts a minimal request identity from them.
package token

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stocknest/stocknest/internal/shared"
)

// Claims carries the token payload this service cares about.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Validator checks bearer tokens against the shared HMAC secret and the
// expected audience. It holds no mutable state and is safe for concurrent use.
type Validator struct {
	secret   []byte
	audience string
}

// NewValidator constructs a Validator.
func NewValidator(secret, audience string) *Validator {
	return &Validator{secret: []byte(secret), audience: audience}
}

// Validate verifies the bearer string and returns the minimal identity it
// asserts. Signature, expiry, audience and the presence of a subject are all
// required; any failure yields shared.ErrUnauthenticated.
func (v *Validator) Validate(bearer string) (shared.Identity, error) {
	if strings.TrimSpace(bearer) == "" {
		return shared.Identity{}, fmt.Errorf("token: empty credential: %w", shared.ErrUnauthenticated)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(bearer, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithAudience(v.audience))
	if err != nil {
		return shared.Identity{}, fmt.Errorf("token: %v: %w", err, shared.ErrUnauthenticated)
	}
	if !parsed.Valid || claims.Subject == "" {
		return shared.Identity{}, fmt.Errorf("token: missing subject: %w", shared.ErrUnauthenticated)
	}

	return shared.Identity{
		Subject:   claims.Subject,
		Email:     claims.Email,
		TokenRole: claims.Role,
	}, nil
}

// ValidateRequest extracts the Authorization header and validates it.
func (v *Validator) ValidateRequest(r *http.Request) (shared.Identity, error) {
	bearer, ok := BearerFromRequest(r)
	if !ok {
		return shared.Identity{}, fmt.Errorf("token: missing bearer credential: %w", shared.ErrUnauthenticated)
	}
	return v.Validate(bearer)
}

// ValidateOptional behaves like ValidateRequest but treats a missing or
// invalid credential as anonymous instead of failing. Endpoints that serve
// both authenticated and anonymous callers use this variant.
func (v *Validator) ValidateOptional(r *http.Request) (shared.Identity, bool) {
	bearer, ok := BearerFromRequest(r)
	if !ok {
		return shared.Identity{}, false
	}
	id, err := v.Validate(bearer)
	if err != nil {
		return shared.Identity{}, false
	}
	return id, true
}

// BearerFromRequest pulls the bearer token out of the Authorization header.
func BearerFromRequest(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}
