// ABOUTME: Tests for JWT, API-key, and chained token verification
// ABOUTME: Covers expiry, bad signatures, missing claims, and verifier ordering

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifierRoundTrip(t *testing.T) {
	v, err := NewJWTVerifier([]byte("test-secret"))
	require.NoError(t, err)

	token, err := v.Generate("client-1", time.Hour)
	require.NoError(t, err)

	clientID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "client-1", clientID)
}

func TestJWTVerifierEmptySecret(t *testing.T) {
	_, err := NewJWTVerifier(nil)
	assert.Error(t, err)
}

func TestJWTVerifierExpiredToken(t *testing.T) {
	v, err := NewJWTVerifier([]byte("test-secret"))
	require.NoError(t, err)

	token, err := v.Generate("client-1", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifierWrongSecret(t *testing.T) {
	signer, err := NewJWTVerifier([]byte("secret-a"))
	require.NoError(t, err)
	verifier, err := NewJWTVerifier([]byte("secret-b"))
	require.NoError(t, err)

	token, err := signer.Generate("client-1", time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifierMissingSubClaim(t *testing.T) {
	v, err := NewJWTVerifier([]byte("test-secret"))
	require.NoError(t, err)

	claims := jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestAPIKeyVerifier(t *testing.T) {
	v := NewAPIKeyVerifier([]string{"sk-alpha", "sk-beta"})

	clientID, err := v.Verify("sk-beta")
	require.NoError(t, err)
	assert.Equal(t, "api-key", clientID)

	_, err = v.Verify("sk-gamma")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAPIKeyVerifierEmptyList(t *testing.T) {
	v := NewAPIKeyVerifier(nil)
	_, err := v.Verify("anything")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMultiVerifierTriesInOrder(t *testing.T) {
	jwtV, err := NewJWTVerifier([]byte("test-secret"))
	require.NoError(t, err)
	keys := NewAPIKeyVerifier([]string{"sk-alpha"})

	m := NewMultiVerifier(keys, jwtV)

	clientID, err := m.Verify("sk-alpha")
	require.NoError(t, err)
	assert.Equal(t, "api-key", clientID)

	token, err := jwtV.Generate("client-1", time.Hour)
	require.NoError(t, err)
	clientID, err = m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "client-1", clientID)

	_, err = m.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMultiVerifierSkipsNil(t *testing.T) {
	m := NewMultiVerifier(nil, NewAPIKeyVerifier([]string{"sk-alpha"}))
	_, err := m.Verify("sk-alpha")
	assert.NoError(t, err)
}
