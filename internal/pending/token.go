package pending

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TokenGenerator produces candidate tokens. The registry checks uniqueness
// and asks again on collision.
type TokenGenerator interface {
	Generate() (string, error)
}

// SecureGenerator mints unpredictable tokens.
//
// Each token is the SHA-1 digest of the wall clock, a process-wide
// monotonic counter and a random UUIDv7 (which itself carries a millisecond
// timestamp plus 74 random bits from crypto/rand). Hashing keeps the timing
// inputs out of the token text.
//
// Format: 40 lowercase hex characters.
//
// Thread-safety: SecureGenerator is safe for concurrent use.
type SecureGenerator struct {
	seq atomic.Uint64
	now func() time.Time
}

// NewSecureGenerator creates a generator reading the system clock.
func NewSecureGenerator() *SecureGenerator {
	return &SecureGenerator{now: time.Now}
}

// Generate returns a fresh candidate token.
func (g *SecureGenerator) Generate() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	now := time.Now
	if g.now != nil {
		now = g.now
	}

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(now().UnixNano()))
	binary.BigEndian.PutUint64(buf[8:], g.seq.Add(1))

	h := sha1.New()
	h.Write(buf[:])
	h.Write(id[:])
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FixedGenerator returns predetermined tokens for testing.
//
// This enables deterministic test execution and golden trace comparison.
// Tests can provide a known sequence of tokens and verify exact trace output.
// Repeating a token in the sequence exercises the registry's collision retry.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order.
//
// Example:
//
//	gen := NewFixedGenerator("tok-1", "tok-2")
//	gen.Generate() // "tok-1", nil
//	gen.Generate() // "tok-2", nil
//	gen.Generate() // "", error: all tokens exhausted
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token, or an error once the
// sequence is used up.
func (g *FixedGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		return "", fmt.Errorf("fixed generator: all %d tokens exhausted", len(g.tokens))
	}
	token := g.tokens[g.idx]
	g.idx++
	return token, nil
}

// Remaining returns how many tokens are left.
func (g *FixedGenerator) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tokens) - g.idx
}
