// Package auth issues and verifies bearer tokens and hashes passwords.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrWeakSecret   = errors.New("signing secret must be at least 16 bytes")
)

// MinSecretLen is the shortest HMAC secret an Issuer accepts.
const MinSecretLen = 16

// Claims identifies the user a token was issued to.
// The "id" claim name is what clients decode.
type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer for the given secret and token lifetime.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL reports how long issued tokens stay valid.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue creates a signed token for userID.
func (i *Issuer) Issue(userID string) (string, error) {
	if userID == "" {
		return "", ErrInvalidToken
	}
	now := i.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify parses token and returns the user id it carries.
func (i *Issuer) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}
