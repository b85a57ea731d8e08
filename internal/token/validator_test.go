package token_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/stocknest/stocknest/internal/shared"
	"github.com/stocknest/stocknest/internal/token"
	_ "github.com/stocknest/stocknest/testing"
)

const (
	testSecret   = "test-signing-secret"
	testAudience = "authenticated"
)

func signToken(t *testing.T, secret string, mutate func(*token.Claims)) string {
	t.Helper()
	claims := token.Claims{
		Email: "ana@example.test",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "subject-1",
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	if mutate != nil {
		mutate(&claims)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateAcceptsWellFormedToken(t *testing.T) {
	v := token.NewValidator(testSecret, testAudience)

	id, err := v.Validate(signToken(t, testSecret, nil))
	require.NoError(t, err)
	require.Equal(t, "subject-1", id.Subject)
	require.Equal(t, "ana@example.test", id.Email)
	require.Equal(t, "authenticated", id.TokenRole)
}

func TestValidateRejectsBadTokens(t *testing.T) {
	v := token.NewValidator(testSecret, testAudience)

	cases := map[string]string{
		"wrong secret": signToken(t, "other-secret", nil),
		"expired": signToken(t, testSecret, func(c *token.Claims) {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		}),
		"wrong audience": signToken(t, testSecret, func(c *token.Claims) {
			c.Audience = jwt.ClaimStrings{"somebody-else"}
		}),
		"missing subject": signToken(t, testSecret, func(c *token.Claims) {
			c.Subject = ""
		}),
		"garbage": "not-a-token",
		"empty":   "",
	}
	for name, bearer := range cases {
		_, err := v.Validate(bearer)
		require.Error(t, err, name)
		require.True(t, errors.Is(err, shared.ErrUnauthenticated), name)
	}
}

func TestValidateRequestReadsAuthorizationHeader(t *testing.T) {
	v := token.NewValidator(testSecret, testAudience)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, nil))

	id, err := v.ValidateRequest(req)
	require.NoError(t, err)
	require.Equal(t, "subject-1", id.Subject)

	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err = v.ValidateRequest(bare)
	require.True(t, errors.Is(err, shared.ErrUnauthenticated))
}

func TestValidateOptionalTreatsMissingOrInvalidAsAnonymous(t *testing.T) {
	v := token.NewValidator(testSecret, testAudience)

	anon := httptest.NewRequest(http.MethodGet, "/", nil)
	id, ok := v.ValidateOptional(anon)
	require.False(t, ok)
	require.True(t, id.IsAnonymous())

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", nil))
	_, ok = v.ValidateOptional(bad)
	require.False(t, ok)

	good := httptest.NewRequest(http.MethodGet, "/", nil)
	good.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, nil))
	id, ok = v.ValidateOptional(good)
	require.True(t, ok)
	require.Equal(t, "subject-1", id.Subject)
}
