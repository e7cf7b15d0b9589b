// Package entropy provides the single random-number source shared by combat,
// bracket seeding, and odds logic. Seed it for reproducible runs; seed from
// crypto/rand for production.
package entropy

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"sync"
)

// Source is a seedable random source safe for use from the arena loop and the
// interval timers concurrently.
type Source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSource creates a source from a fixed seed.
func NewSource(seed int64) *Source {
	return &Source{rng: rand.New(rand.NewSource(seed))}
}

// NewCryptoSource creates a source seeded from crypto/rand.
func NewCryptoSource() *Source {
	var buf [8]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		// crypto/rand should never fail; fall back to a constant seed.
		return NewSource(1)
	}
	return NewSource(int64(binary.LittleEndian.Uint64(buf[:])))
}

// Float returns a random float64 in [0, 1).
func (s *Source) Float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Chance returns true with probability p.
func (s *Source) Chance(p float64) bool {
	return s.Float() < p
}

// Uniform returns a random float64 in [lo, hi).
func (s *Source) Uniform(lo, hi float64) float64 {
	return lo + s.Float()*(hi-lo)
}

// Intn returns a random int in [0, n). n must be > 0.
func (s *Source) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// NormFloat64 returns a normally distributed float64 (mean 0, stddev 1).
func (s *Source) NormFloat64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.NormFloat64()
}

// Shuffle randomizes the order of n elements via swap.
func (s *Source) Shuffle(n int, swap func(i, j int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(n, swap)
}
