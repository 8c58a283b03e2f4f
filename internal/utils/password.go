package utils

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost keeps a verification in the tens-to-hundreds of
// milliseconds on current hardware.
const DefaultBcryptCost = 12

// MaxPasswordBytes is the longest input bcrypt accepts.
const MaxPasswordBytes = 72

// PasswordHasher hashes and verifies passwords with bcrypt at a fixed cost.
type PasswordHasher struct {
	cost  int
	dummy []byte
}

// NewPasswordHasher returns a hasher using cost, or DefaultBcryptCost when
// cost is outside bcrypt's accepted range.  It precomputes a hash of a random
// value so VerifyDummy burns the same CPU time as a real comparison.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	// 32 hex chars never exceed bcrypt's input limit.
	dummy, _ := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(buf)), cost)
	return &PasswordHasher{cost: cost, dummy: dummy}
}

// Cost returns the work factor in use.
func (h *PasswordHasher) Cost() int { return h.cost }

// Hash returns the bcrypt hash of plain.  It only fails for inputs longer
// than MaxPasswordBytes.
func (h *PasswordHasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify safely compares a bcrypt hash and a plain password.  Any mismatch,
// including a malformed stored hash, yields false.
func (h *PasswordHasher) Verify(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// VerifyDummy runs a comparison whose result is discarded, used on branches
// that have no stored hash so their latency matches a real check.
func (h *PasswordHasher) VerifyDummy(plain string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
}
