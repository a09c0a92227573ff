package auth

// CRON SECRET:
// The scheduler that triggers /api/cron/ingest-trends authenticates with a
// shared bearer secret. We never keep the plain secret around after startup:
// either the operator supplies a bcrypt hash (CRON_SECRET_HASH, produced by
// `alternatives hash-secret`), or we hash CRON_SECRET once at boot.
//
// bcrypt.CompareHashAndPassword is constant-time, so response timing does not
// leak how much of a guessed secret was right.

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultSecretCost is the bcrypt work factor for hashed secrets.
const DefaultSecretCost = 12

// SecretVerifier checks presented bearer secrets against a bcrypt hash.
// The zero value (and a nil pointer) rejects everything.
type SecretVerifier struct {
	hash []byte
}

// HashSecret returns the bcrypt hash of plain.
func HashSecret(plain string, cost int) (string, error) {
	if plain == "" {
		return "", errors.New("auth: secret must not be empty")
	}
	// bcrypt only looks at the first 72 bytes; refuse rather than truncate.
	if len(plain) > 72 {
		return "", errors.New("auth: secret must be 72 bytes or fewer")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing secret: %w", err)
	}
	return string(hashed), nil
}

// NewSecretVerifier builds a verifier from a precomputed hash, or from the
// plain secret when no hash is given. With neither, it returns a verifier
// that rejects every request.
func NewSecretVerifier(plain, hash string, cost int) (*SecretVerifier, error) {
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("auth: invalid secret hash: %w", err)
		}
		return &SecretVerifier{hash: []byte(hash)}, nil
	}
	if plain == "" {
		return &SecretVerifier{}, nil
	}

	hashed, err := HashSecret(plain, cost)
	if err != nil {
		return nil, err
	}
	return &SecretVerifier{hash: []byte(hashed)}, nil
}

// Enabled reports whether a secret is configured at all.
func (v *SecretVerifier) Enabled() bool {
	return v != nil && len(v.hash) > 0
}

// Verify reports whether presented matches the configured secret.
func (v *SecretVerifier) Verify(presented string) bool {
	if !v.Enabled() || presented == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(v.hash, []byte(presented)) == nil
}
