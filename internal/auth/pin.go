package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidPIN rejects a login with the wrong PIN.
var ErrInvalidPIN = errors.New("auth: invalid pin")

// PinVerifier holds the shared dashboard PIN as a bcrypt hash so the
// plaintext never sits in memory longer than startup.
type PinVerifier struct {
	hash []byte
}

// NewPinVerifier hashes the configured PIN.
func NewPinVerifier(pin string) (*PinVerifier, error) {
	if pin == "" {
		return nil, errors.New("auth: empty pin")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &PinVerifier{hash: hash}, nil
}

// Verify compares a login attempt against the stored hash.
func (v *PinVerifier) Verify(pin string) error {
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(pin)); err != nil {
		return ErrInvalidPIN
	}
	return nil
}
