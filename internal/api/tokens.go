package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const scopePrefix = "api:"

var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer signs HS256 session tokens. The token id doubles as the session
// scope, so signing out one token leaves the others alive.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

type TokenClaims struct {
	Email string
	Scope string
}

// Issue returns a signed token for email and the session scope it names.
func (i *TokenIssuer) Issue(email string) (token string, scope string, err error) {
	id := uuid.NewString()
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	return signed, scopePrefix + id, nil
}

func (i *TokenIssuer) Parse(token string) (TokenClaims, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return TokenClaims{}, fmt.Errorf("%w: missing subject or id", ErrInvalidToken)
	}
	return TokenClaims{Email: claims.Subject, Scope: scopePrefix + claims.ID}, nil
}
