package hashing

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"account-service/internal/config"
)

var ErrMismatch = errors.New("password mismatch")

// Hasher wraps bcrypt with the configured fixed cost factor. bcrypt salts
// internally, so equal passwords never produce equal hashes.
type Hasher struct {
	cost int
}

func NewHasher(cfg *config.Config) *Hasher {
	cost := cfg.Hashing.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// HashPassword produces a salted one-way hash of the plaintext password.
func (h *Hasher) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password against a stored hash in
// constant time. Returns ErrMismatch on any failure so callers cannot tell a
// bad hash from a bad password.
func (h *Hasher) VerifyPassword(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrMismatch
	}
	return nil
}
