package crypto

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
)

// alphanumeric is the charset used for key halves and fingerprints.
const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Random is the randomness source used by key generation and the handshake.
type Random interface {
	// Uint32 returns a uniformly distributed 32-bit value.
	Uint32() uint32

	// Uint32n returns a uniformly distributed value in [0, n). n must be > 0.
	Uint32n(n uint32) uint32
}

// SystemRandom draws from crypto/rand.
type SystemRandom struct{}

func (SystemRandom) Uint32() uint32 {
	var b [4]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return binary.BigEndian.Uint32(b[:])
}

func (r SystemRandom) Uint32n(n uint32) uint32 {
	return uniform(r, n)
}

// SeededRandom is a deterministic source for tests. Safe for concurrent use.
type SeededRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededRandom returns a deterministic source seeded with seed.
func NewSeededRandom(seed int64) *SeededRandom {
	return &SeededRandom{rng: rand.New(rand.NewSource(seed))}
}

func (r *SeededRandom) Uint32() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Uint32()
}

func (r *SeededRandom) Uint32n(n uint32) uint32 {
	return uniform(r, n)
}

// uniform maps Uint32 onto [0, n) by rejection sampling to avoid modulo bias.
func uniform(r Random, n uint32) uint32 {
	if n == 0 {
		panic("crypto: Uint32n with n == 0")
	}
	limit := ^uint32(0) - (^uint32(0)%n+1)%n
	for {
		v := r.Uint32()
		if v <= limit {
			return v % n
		}
	}
}

// RandomString returns length characters drawn from [A-Za-z0-9].
func RandomString(r Random, length int) string {
	out := make([]byte, length)
	for i := range out {
		out[i] = alphanumeric[r.Uint32n(uint32(len(alphanumeric)))]
	}
	return string(out)
}
