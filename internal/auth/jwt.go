package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims defines the access token claims. The token only names the session;
// everything else is looked up server side.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and parses session access tokens.
type TokenIssuer struct {
	key []byte
}

// NewTokenIssuer creates a TokenIssuer signing with secret.
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{key: []byte(secret)}
}

// Generate creates the access token for a session. The token is deterministic
// for a given session id and expiry.
func (t *TokenIssuer) Generate(sessionID string, expiresAt time.Time) (string, error) {
	claims := &Claims{SessionID: sessionID}
	if !expiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

// Validate parses a token string and returns the session id it names. Expiry
// is checked against now.
func (t *TokenIssuer) Validate(tokenStr string, now time.Time) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.SessionID == "" {
		return "", fmt.Errorf("invalid token")
	}
	return claims.SessionID, nil
}
