package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPasswordWithCost("correct horse", MinCost)
	if err != nil {
		t.Fatalf("HashPasswordWithCost() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("hash %q is not bcrypt", hash)
	}

	if err := VerifyPassword("correct horse", hash); err != nil {
		t.Errorf("VerifyPassword(correct) error = %v", err)
	}
	if err := VerifyPassword("battery staple", hash); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("VerifyPassword(wrong) error = %v, want ErrPasswordMismatch", err)
	}
}

func TestHashPassword_Empty(t *testing.T) {
	if _, err := HashPasswordWithCost("", MinCost); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("error = %v, want ErrEmptyPassword", err)
	}
}

func TestVerifyPassword_BadInput(t *testing.T) {
	tests := []struct {
		name     string
		password string
		hash     string
		want     error
	}{
		{"empty password", "", "$2a$10$abc", ErrEmptyPassword},
		{"empty hash", "secret", "", ErrInvalidHash},
		{"garbage hash", "secret", "not-a-hash", ErrPasswordMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifyPassword(tt.password, tt.hash); !errors.Is(err, tt.want) {
				t.Errorf("VerifyPassword() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateHashStrength(t *testing.T) {
	strong, _ := HashPasswordWithCost("secret", MinCost)
	weak, _ := HashPasswordWithCost("secret", 4)

	tests := []struct {
		name string
		hash string
		want error
	}{
		{"min cost", strong, nil},
		{"too weak", weak, ErrCostTooLow},
		{"empty", "", ErrInvalidHash},
		{"garbage", "plaintext", ErrInvalidHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateHashStrength(tt.hash); !errors.Is(err, tt.want) {
				t.Errorf("ValidateHashStrength() error = %v, want %v", err, tt.want)
			}
		})
	}
}
