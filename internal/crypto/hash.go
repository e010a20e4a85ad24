package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost is the bcrypt cost used when none is configured.
const DefaultHashCost = bcrypt.DefaultCost

// Hasher hashes and verifies API keys with bcrypt.
type Hasher struct {
	cost  int
	dummy []byte
}

// NewHasher creates a Hasher with the given bcrypt cost. A zero cost selects
// DefaultHashCost.
func NewHasher(cost int) (*Hasher, error) {
	if cost == 0 {
		cost = DefaultHashCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}

	// Hash compared against when no account exists, so lookups of unknown
	// mailboxes cost one bcrypt comparison at the same cost.
	dummy, err := bcrypt.GenerateFromPassword([]byte("smtpbridge-unknown-account"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &Hasher{cost: cost, dummy: dummy}, nil
}

// Cost returns the configured bcrypt cost.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns the bcrypt hash of secret.
func (h *Hasher) Hash(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("secret exceeds 72 bytes: %w", err)
		}
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether secret matches hash. A malformed hash never matches.
func (h *Hasher) Verify(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// VerifyDummy performs a comparison against a fixed hash and always reports
// false.
func (h *Hasher) VerifyDummy(secret string) bool {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(secret))
	return false
}
