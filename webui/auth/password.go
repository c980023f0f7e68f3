// Package auth guards the dashboard's write endpoints with an admin password.
// This file contains bcrypt password hashing and verification.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Password hashing configuration constants
const (
	// DefaultCost is the bcrypt cost factor for password hashing.
	DefaultCost = 12

	// MinCost is the minimum accepted cost for configured hashes.
	MinCost = 10
)

// Error definitions for password operations
var (
	// ErrEmptyPassword is returned when attempting to hash an empty password.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrPasswordMismatch is returned when password verification fails.
	// It does not reveal whether the hash itself was valid.
	ErrPasswordMismatch = errors.New("password does not match")

	// ErrInvalidHash is returned when the hash format is invalid.
	ErrInvalidHash = errors.New("invalid password hash format")

	// ErrCostTooLow is returned when the hash cost is below MinCost.
	ErrCostTooLow = errors.New("hash cost is below minimum acceptable value")
)

// HashPassword creates a bcrypt hash of password at DefaultCost.
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, DefaultCost)
}

// HashPasswordWithCost creates a bcrypt hash with a specific cost factor.
func HashPasswordWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a bcrypt hash in
// constant time. It returns nil on match and ErrPasswordMismatch otherwise.
func VerifyPassword(password, hash string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	if hash == "" {
		return ErrInvalidHash
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		// Don't expose internal bcrypt errors
		return ErrPasswordMismatch
	}
	return nil
}

// ValidateHashStrength checks that a configured hash is well-formed and
// was produced with at least MinCost.
func ValidateHashStrength(hash string) error {
	if hash == "" {
		return ErrInvalidHash
	}

	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return ErrInvalidHash
	}
	if cost < MinCost {
		return ErrCostTooLow
	}
	return nil
}
