package service

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPin returns the bcrypt hash stored in users.access_pin.
func HashPin(pin string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// PinMatches compares a submitted PIN against the stored value. Rows that
// predate hashing still hold the plain PIN and are compared in constant time.
func PinMatches(stored, pin string) bool {
	if stored == "" || pin == "" {
		return false
	}
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(pin)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(pin)) == 1
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}
