package httphandler

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	// Packages
	jwt "github.com/golang-jwt/jwt/v5"
	schema "github.com/mutablelogic/go-upload/pkg/schema"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// ScopeFunc derives the caller scope from a request. Uploads from
// different scopes never share staging areas.
type ScopeFunc func(r *http.Request) (string, error)

// Claims are the claims of an upload token
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId,omitempty"`
}

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// OpaqueScope uses a digest of the bearer token as the scope, without
// interpreting it. Requests without a token share the empty scope.
func OpaqueScope(r *http.Request) (string, error) {
	token := BearerToken(r)
	if token == "" {
		return "", nil
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8]), nil
}

// TokenScope verifies an HS256 bearer token signed with secret and uses
// its userId claim as the scope, or the subject when there is no userId
func TokenScope(secret []byte) ScopeFunc {
	return func(r *http.Request) (string, error) {
		token := BearerToken(r)
		if token == "" {
			return "", schema.NewError(schema.Unauthorized, "missing bearer token")
		}
		claims, err := ParseToken(token, secret)
		if err != nil {
			return "", err
		}
		return claims.Scope(), nil
	}
}

// BearerToken returns the token from the Authorization header, or the
// empty string
func BearerToken(r *http.Request) string {
	header := r.Header.Get(authorizationHeader)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// NewToken returns an HS256 token for a user which expires after ttl
func NewToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
	}).SignedString(secret)
}

// ParseToken verifies an HS256 token and returns its claims
func ParseToken(token string, secret []byte) (*Claims, error) {
	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, schema.NewError(schema.Unauthorized, "invalid token").Wrap(err)
	} else if !parsed.Valid {
		return nil, schema.NewError(schema.Unauthorized, "invalid token")
	} else if claims.Scope() == "" {
		return nil, schema.NewError(schema.Unauthorized, "token has no user")
	}
	return claims, nil
}

// Scope returns the user the claims identify
func (c Claims) Scope() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}
