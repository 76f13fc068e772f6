package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims are the claims minted by the identity service. This service
// only verifies them; it never issues tokens.
type AccessClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 access tokens with the shared secret.
type Verifier struct {
	accessSecret []byte
}

func NewVerifier(accessSecret string) *Verifier {
	return &Verifier{accessSecret: []byte(accessSecret)}
}

func (v *Verifier) ValidateAccessToken(tokenStr string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.accessSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing access token: %w", err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid access token")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("access token missing user id")
	}
	return claims, nil
}
