package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestAuthorizer(t *testing.T) *JWTAuthorizer {
	t.Helper()
	a, err := NewJWTAuthorizer(testSecret, time.Hour)
	require.NoError(t, err)
	return a
}

func signClaims(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestNewJWTAuthorizer_RequiresSecret(t *testing.T) {
	_, err := NewJWTAuthorizer("", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret is required")
}

func TestAuthorize_Valid(t *testing.T) {
	a := newTestAuthorizer(t)
	token, err := a.IssueToken(User{ID: 42, Name: "sam", Role: "user"})
	require.NoError(t, err)

	d := a.Authorize(context.Background(), "user", token)
	assert.True(t, d.OK())
	assert.Equal(t, StatusOK, d.Status)
	assert.Equal(t, MsgAuthorized, d.Message)
	require.NotNil(t, d.User)
	assert.Equal(t, User{ID: 42, Name: "sam", Role: "user"}, *d.User)
}

func TestAuthorize_WrongRole(t *testing.T) {
	a := newTestAuthorizer(t)
	token, err := a.IssueToken(User{ID: 3, Name: "diner", Role: "restaurant"})
	require.NoError(t, err)

	d := a.Authorize(context.Background(), "user", token)
	assert.Equal(t, StatusForbidden, d.Status)
	assert.Equal(t, MsgWrongRole, d.Message)
	assert.Nil(t, d.User)
}

func TestAuthorize_Expired(t *testing.T) {
	a := newTestAuthorizer(t)
	token := signClaims(t, jwt.SigningMethodHS256, []byte(testSecret), Claims{
		ID: 1, Role: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	d := a.Authorize(context.Background(), "user", token)
	assert.Equal(t, StatusUnauthorized, d.Status)
	assert.Equal(t, MsgTokenExpired, d.Message)
}

func TestAuthorize_InvalidTokens(t *testing.T) {
	a := newTestAuthorizer(t)
	wrongKey := signClaims(t, jwt.SigningMethodHS256, []byte("other-secret"), Claims{ID: 1, Role: "user"})
	unsigned := signClaims(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, Claims{ID: 1, Role: "user"})

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"malformed", "not-a-jwt"},
		{"wrong secret", wrongKey},
		{"alg none", unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := a.Authorize(context.Background(), "user", tt.token)
			assert.Equal(t, StatusUnauthorized, d.Status)
			assert.True(t, strings.HasPrefix(d.Message, "Invalid token: "), d.Message)
			assert.Nil(t, d.User)
		})
	}
}

func TestAuthorize_CanceledContext(t *testing.T) {
	a := newTestAuthorizer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := a.Authorize(ctx, "user", "whatever")
	assert.Equal(t, StatusUnexpected, d.Status)
	assert.Equal(t, "Unexpected error : context canceled", d.Message)
}

func TestIssueToken_ExpiresAfterTTL(t *testing.T) {
	a, err := NewJWTAuthorizer(testSecret, 2*time.Hour)
	require.NoError(t, err)

	token, err := a.IssueToken(User{ID: 1, Role: "user"})
	require.NoError(t, err)

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return []byte(testSecret), nil })
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}
