// ABOUTME: Bearer token verification for the chat-completion API
// ABOUTME: Supports static API keys and HS256 JWTs with configurable secret

package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Verifier validates a bearer token and returns the client identity it names.
type Verifier interface {
	Verify(token string) (clientID string, err error)
}

// JWTVerifier implements Verifier using HS256 signed JWTs.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret.
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &JWTVerifier{secret: secret}, nil
}

// Verify validates the token and extracts the client ID from the "sub" claim.
func (v *JWTVerifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}

// Generate creates a new JWT token for the given client ID with expiration.
func (v *JWTVerifier) Generate(clientID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": clientID,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// APIKeyVerifier implements Verifier against a static key list from config.
// All keys map to the same anonymous client identity.
type APIKeyVerifier struct {
	keys []string
}

// NewAPIKeyVerifier creates a verifier for the given key list.
func NewAPIKeyVerifier(keys []string) *APIKeyVerifier {
	return &APIKeyVerifier{keys: keys}
}

// Verify checks the token against the configured keys in constant time.
func (v *APIKeyVerifier) Verify(token string) (string, error) {
	for _, key := range v.keys {
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
			return "api-key", nil
		}
	}
	return "", ErrInvalidToken
}

// MultiVerifier tries each verifier in order and accepts the first success.
type MultiVerifier struct {
	verifiers []Verifier
}

// NewMultiVerifier creates a verifier chain. Nil entries are skipped.
func NewMultiVerifier(verifiers ...Verifier) *MultiVerifier {
	kept := make([]Verifier, 0, len(verifiers))
	for _, v := range verifiers {
		if v != nil {
			kept = append(kept, v)
		}
	}
	return &MultiVerifier{verifiers: kept}
}

// Verify implements Verifier.
func (m *MultiVerifier) Verify(token string) (string, error) {
	for _, v := range m.verifiers {
		if clientID, err := v.Verify(token); err == nil {
			return clientID, nil
		}
	}
	return "", ErrInvalidToken
}
