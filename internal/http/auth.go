package http

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// AdminClaims are carried by tokens that may issue authorizations and rotate
// the signer.
type AdminClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// GenerateAdminToken signs an HS256 admin token for subject, valid for ttl.
func GenerateAdminToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("admin token secret is empty")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: AdminRole,
	})
	return token.SignedString(secret)
}

// ParseAdminToken validates tokenString and returns its subject.
func ParseAdminToken(tokenString string, secret []byte) (string, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", errors.Mark(err, ErrInvalidToken)
	}
	if !token.Valid || claims.Role != AdminRole {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
