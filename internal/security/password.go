// Package security provides password hashing, cookie sessions and flash
// messages for the web interface.
package security

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/oncoderma/oncoderma-go/internal/errors"
)

// ErrPasswordTooLong is returned for passwords bcrypt cannot hash.
var ErrPasswordTooLong = errors.NewStd("password must be at most 72 bytes")

// hashCost is a variable so tests can use bcrypt.MinCost.
var hashCost = bcrypt.DefaultCost

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.NewValidationError("password is required")
	}
	if len(password) > MaxPasswordBytes {
		return "", errors.New(ErrPasswordTooLong).
			Component("security").
			Category(errors.CategoryValidation).
			Build()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", errors.New(err).
			Component("security").
			Category(errors.CategorySystem).
			Build()
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	if hash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// dummyHash is compared against when a username does not exist so that
// unknown users take as long to reject as wrong passwords.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("oncoderma-timing-equalizer"), bcrypt.DefaultCost)

// EqualizeTiming burns one bcrypt comparison.
func EqualizeTiming(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}
