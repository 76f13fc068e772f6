package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-characters-long"

func mintToken(t *testing.T, secret string, claims AccessClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateAccessToken(t *testing.T) {
	v := NewVerifier(testSecret)
	tokenStr := mintToken(t, testSecret, AccessClaims{
		UserID: "user-1",
		Email:  "judge@podium.dev",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := v.ValidateAccessToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "judge@podium.dev", claims.Email)
}

func TestValidateAccessToken_WrongSecret(t *testing.T) {
	v := NewVerifier(testSecret)
	tokenStr := mintToken(t, "some-other-secret-32-characters-xx", AccessClaims{UserID: "user-1"})

	_, err := v.ValidateAccessToken(tokenStr)
	assert.Error(t, err)
}

func TestValidateAccessToken_Expired(t *testing.T) {
	v := NewVerifier(testSecret)
	tokenStr := mintToken(t, testSecret, AccessClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	_, err := v.ValidateAccessToken(tokenStr)
	assert.Error(t, err)
}

func TestValidateAccessToken_MissingUserID(t *testing.T) {
	v := NewVerifier(testSecret)
	tokenStr := mintToken(t, testSecret, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err := v.ValidateAccessToken(tokenStr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing user id")
}

func TestValidateAccessToken_Garbage(t *testing.T) {
	v := NewVerifier(testSecret)
	_, err := v.ValidateAccessToken("not.a.token")
	assert.Error(t, err)
}
