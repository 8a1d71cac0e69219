// Package auth verifies bearer tokens and the caller's login type before a
// request reaches the recommendation pipeline.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

// Decision statuses. 900 is returned for failures that are not a token
// problem; callers pass every non-OK status through unchanged.
const (
	StatusOK           = 200
	StatusUnauthorized = 401
	StatusForbidden    = 403
	StatusUnexpected   = 900
)

// Decision messages.
const (
	MsgAuthorized    = "Authentication and authorization successful."
	MsgTokenExpired  = "Token expired, please re-login"
	MsgWrongRole     = "Unauthorized, incorrect login type"
	invalidPrefix    = "Invalid token: "
	unexpectedPrefix = "Unexpected error : "
)

// User is the identity carried by a valid token.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Decision is the outcome of an authorization check. User is set only when
// Status is StatusOK.
type Decision struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	User    *User  `json:"user,omitempty"`
}

// OK reports whether the request may proceed.
func (d Decision) OK() bool {
	return d.Status == StatusOK
}

// Authorizer checks that token is valid and belongs to a user with role.
type Authorizer interface {
	Authorize(ctx context.Context, role, token string) Decision
}

// Claims are the JWT claims issued to users.
type Claims struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthorizer verifies HS256 tokens signed with a shared secret.
type JWTAuthorizer struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTAuthorizer creates a JWTAuthorizer. ttl is the lifetime of issued
// tokens.
func NewJWTAuthorizer(secret string, ttl time.Duration) (*JWTAuthorizer, error) {
	if secret == "" {
		return nil, eris.New("auth: jwt secret is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Hour
	}
	return &JWTAuthorizer{secret: []byte(secret), ttl: ttl}, nil
}

// Authorize implements Authorizer.
func (a *JWTAuthorizer) Authorize(ctx context.Context, role, token string) Decision {
	if err := ctx.Err(); err != nil {
		return Decision{Status: StatusUnexpected, Message: unexpectedPrefix + err.Error()}
	}
	if token == "" {
		return Decision{Status: StatusUnauthorized, Message: invalidPrefix + "jwt must be provided"}
	}

	claims, err := a.verify(token)
	if err != nil {
		return decisionFor(err)
	}

	if claims.Role != role {
		return Decision{Status: StatusForbidden, Message: MsgWrongRole}
	}
	return Decision{
		Status:  StatusOK,
		Message: MsgAuthorized,
		User:    &User{ID: claims.ID, Name: claims.Name, Role: claims.Role},
	}
}

func (a *JWTAuthorizer) verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, eris.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// tokenErrors are the jwt failures reported as an invalid token.
var tokenErrors = []error{
	jwt.ErrTokenMalformed,
	jwt.ErrTokenUnverifiable,
	jwt.ErrTokenSignatureInvalid,
	jwt.ErrTokenInvalidClaims,
	jwt.ErrTokenNotValidYet,
	jwt.ErrTokenUsedBeforeIssued,
	jwt.ErrTokenRequiredClaimMissing,
}

func decisionFor(err error) Decision {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return Decision{Status: StatusUnauthorized, Message: MsgTokenExpired}
	}
	for _, target := range tokenErrors {
		if errors.Is(err, target) {
			return Decision{Status: StatusUnauthorized, Message: invalidPrefix + err.Error()}
		}
	}
	return Decision{Status: StatusUnexpected, Message: unexpectedPrefix + err.Error()}
}

// IssueToken signs a token for u that expires after the configured TTL.
func (a *JWTAuthorizer) IssueToken(u User) (string, error) {
	now := time.Now()
	claims := &Claims{
		ID:   u.ID,
		Name: u.Name,
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", eris.Wrap(err, "auth: sign token")
	}
	return signed, nil
}
