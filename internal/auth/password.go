package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is bcrypt's input limit; longer inputs are rejected
// rather than silently truncated.
const MaxPasswordBytes = 72

// ErrPasswordTooLong is returned for passwords bcrypt cannot hash in full.
var ErrPasswordTooLong = errors.New("password must be at most 72 bytes")

// HashPassword returns a bcrypt hash of password at the given cost.
// A cost outside bcrypt's range falls back to bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	if hash == "" || len(password) > MaxPasswordBytes {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
