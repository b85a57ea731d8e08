package rbac_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/stocknest/stocknest/internal/rbac"
	"github.com/stocknest/stocknest/internal/shared"
	"github.com/stocknest/stocknest/internal/token"
	_ "github.com/stocknest/stocknest/testing"
)

const (
	guardSecret   = "guard-test-secret"
	guardAudience = "authenticated"
)

type stubResolver struct {
	roles       []string
	permissions []string
	storeIDs    []int64
	err         error
	calls       int
}

func (s *stubResolver) Roles(ctx context.Context, subject string) ([]string, error) {
	s.calls++
	return s.roles, s.err
}

func (s *stubResolver) Permissions(ctx context.Context, subject string) ([]string, error) {
	s.calls++
	return s.permissions, s.err
}

func (s *stubResolver) StoreIDs(ctx context.Context, subject string) ([]int64, error) {
	s.calls++
	return s.storeIDs, s.err
}

func bearerFor(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{guardAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(guardSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func newGuard(resolver rbac.Resolver) rbac.Guard {
	return rbac.Guard{
		Validator: token.NewValidator(guardSecret, guardAudience),
		Resolver:  resolver,
	}
}

// captureHandler records the identity the guard passed downstream.
func captureHandler(got *shared.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = shared.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireRoleDeniesMissingRole(t *testing.T) {
	resolver := &stubResolver{roles: []string{"Manager"}}
	guard := newGuard(resolver)

	var got shared.Identity
	handler := guard.RequireRole("Admin")(captureHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", bearerFor(t, "subject-1"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
	require.True(t, got.IsAnonymous(), "handler must not run on denial")
}

func TestRequireRoleAllowsAndEnriches(t *testing.T) {
	resolver := &stubResolver{roles: []string{"Admin", "Manager"}, storeIDs: []int64{3, 9}}
	guard := newGuard(resolver)

	var got shared.Identity
	handler := guard.RequireRole("Admin")(captureHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", bearerFor(t, "subject-1"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "subject-1", got.Subject)
	require.Equal(t, []string{"Admin", "Manager"}, got.Roles)
	require.Equal(t, []int64{3, 9}, got.StoreIDs)
}

func TestRequirePermissionSubsetRule(t *testing.T) {
	cases := []struct {
		name    string
		granted []string
		want    int
	}{
		{"missing one", []string{"users.read"}, http.StatusForbidden},
		{"exact", []string{"users.read", "users.write"}, http.StatusOK},
		{"superset", []string{"users.read", "users.write", "users.delete"}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resolver := &stubResolver{permissions: tc.granted}
			guard := newGuard(resolver)

			var got shared.Identity
			handler := guard.RequirePermission("users.read", "users.write")(captureHandler(&got))

			req := httptest.NewRequest(http.MethodGet, "/users", nil)
			req.Header.Set("Authorization", bearerFor(t, "subject-1"))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			require.Equal(t, tc.want, rr.Code)
			if tc.want == http.StatusOK {
				require.Equal(t, tc.granted, got.Permissions)
			}
		})
	}
}

func TestGuardRejectsBadTokenBeforeResolving(t *testing.T) {
	resolver := &stubResolver{roles: []string{"Admin"}}
	guard := newGuard(resolver)

	handler := guard.RequireRole("Admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
	require.Zero(t, resolver.calls, "grant lookup must not happen for a bad credential")
}

func TestGuardMapsResolutionFailureToServiceUnavailable(t *testing.T) {
	resolver := &stubResolver{err: errors.Join(shared.ErrResolution, errors.New("connection refused"))}
	guard := newGuard(resolver)

	handler := guard.RequirePermission("users.read")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", bearerFor(t, "subject-1"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestAuthenticateAttachesMinimalIdentity(t *testing.T) {
	guard := newGuard(&stubResolver{})

	var got shared.Identity
	handler := guard.Authenticate(captureHandler(&got))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", bearerFor(t, "subject-7"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "subject-7", got.Subject)
	require.Empty(t, got.Roles)
}
