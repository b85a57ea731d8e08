package users

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/stocknest/stocknest/internal/rbac"
	"github.com/stocknest/stocknest/internal/shared"
	"github.com/stocknest/stocknest/internal/token"
	_ "github.com/stocknest/stocknest/testing"
)

const (
	testSecret   = "users-test-secret"
	testAudience = "authenticated"
)

type stubRepo struct {
	users map[string]User
	roles map[string][]string
}

func (s *stubRepo) List(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *stubRepo) Get(ctx context.Context, id string) (User, error) {
	u, ok := s.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubRepo) RoleNames(ctx context.Context, id string) ([]string, error) {
	return s.roles[id], nil
}

type stubResolver struct {
	permissions []string
}

func (s *stubResolver) Roles(ctx context.Context, subject string) ([]string, error) {
	return []string{"Manager"}, nil
}

func (s *stubResolver) Permissions(ctx context.Context, subject string) ([]string, error) {
	return s.permissions, nil
}

func (s *stubResolver) StoreIDs(ctx context.Context, subject string) ([]int64, error) {
	return nil, nil
}

func bearerFor(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Audience:  jwt.ClaimStrings{testAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func newTestRouter(t *testing.T, repo RepositoryPort, permissions []string) chi.Router {
	t.Helper()
	guard := rbac.Guard{
		Validator: token.NewValidator(testSecret, testAudience),
		Resolver:  &stubResolver{permissions: permissions},
	}
	r := chi.NewRouter()
	NewHandler(nil, repo, guard).MountRoutes(r)
	return r
}

func directoryFixture() *stubRepo {
	return &stubRepo{
		users: map[string]User{
			"u-1": {ID: "u-1", Email: "ayu@example.com", FullName: "Ayu Lestari", Phone: "+62811", CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		},
		roles: map[string][]string{"u-1": {"Cashier"}},
	}
}

func get(t *testing.T, router chi.Router, path, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", bearer)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestGetUserFiltersUngrantedFields(t *testing.T) {
	router := newTestRouter(t, directoryFixture(), []string{"users.read", "users.field.email"})

	rr := get(t, router, "/u-1", bearerFor(t, "admin-1"))
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "u-1", body["id"])
	require.Equal(t, "Ayu Lestari", body["full_name"])
	require.Equal(t, "ayu@example.com", body["email"])
	require.NotContains(t, body, "phone")
	require.NotContains(t, body, "roles")
	// Fields without a gate stay visible.
	require.Equal(t, "2025-01-02T03:04:05Z", body["created_at"])
}

func TestListUsersFullyGranted(t *testing.T) {
	perms := []string{"users.read", "users.field.email", "users.field.phone", "users.field.roles"}
	router := newTestRouter(t, directoryFixture(), perms)

	rr := get(t, router, "/", bearerFor(t, "admin-1"))
	require.Equal(t, http.StatusOK, rr.Code)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body, 1)
	require.Equal(t, "+62811", body[0]["phone"])
	require.Equal(t, []any{"Cashier"}, body[0]["roles"])
}

func TestGetUserRequiresReadPermission(t *testing.T) {
	router := newTestRouter(t, directoryFixture(), []string{"users.field.email"})
	rr := get(t, router, "/u-1", bearerFor(t, "admin-1"))
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestGetUnknownUser(t *testing.T) {
	router := newTestRouter(t, directoryFixture(), []string{"users.read"})
	rr := get(t, router, "/u-404", bearerFor(t, "admin-1"))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMeReturnsOwnProfileUnfiltered(t *testing.T) {
	router := newTestRouter(t, directoryFixture(), []string{"users.read"})

	rr := get(t, router, "/me", bearerFor(t, "u-1"))
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "+62811", body["phone"])
	require.Equal(t, "ayu@example.com", body["email"])
}
