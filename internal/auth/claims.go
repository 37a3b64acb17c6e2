package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims the service understands. StoreID 0 means the
// identity is not bound to a single store (admins).
type Claims struct {
	Role    string `json:"role"`
	StoreID int    `json:"store_id"`
	jwt.RegisteredClaims
}

// ParseJWT validates a token with HMAC-SHA256 and returns its claims.
func ParseJWT(token string, secret []byte) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SignJWT issues a token for the given identity. Used by tooling and tests.
func SignJWT(staffID string, role Role, storeID int, secret []byte) (string, error) {
	claims := &Claims{
		Role:    string(role),
		StoreID: storeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: staffID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
