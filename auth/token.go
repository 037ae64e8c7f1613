// Package auth resolves the identity stamped on a socket connection.
// A connection presents a guest token before any room operation is allowed.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "darkroom/errors"
)

const issuer = "darkroom"

// GuestClaims is the data carried inside a guest token: a stable user id
// and the alias shown on outgoing messages.
type GuestClaims struct {
	UserID string `json:"user_id"`
	Alias  string `json:"alias"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed guest token (HS256).
func GenerateToken(secret []byte, userID, alias string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &GuestClaims{
		UserID: userID,
		Alias:  alias,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken parses and validates the signature and expiration of a
// guest token. Any failure maps to ErrInvalidToken; the caller rejects the
// connection before it can touch any room.
func ValidateToken(secret []byte, tokenString string) (*GuestClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &GuestClaims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}
	claims, ok := token.Claims.(*GuestClaims)
	if !ok || !token.Valid || claims.Alias == "" {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}
