// Package entropy provides the shared random source for stochastic effects.
// A non-zero seed makes runs reproducible; a zero seed draws one from crypto/rand.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"sync"
)

// Source is a concurrency-safe pseudo-random generator. Agent decision
// cycles run in parallel goroutines and all sample through one Source.
type Source struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// New creates a source. seed==0 seeds from crypto/rand.
func New(seed uint64) *Source {
	if seed == 0 {
		seed = cryptoSeed()
	}
	return &Source{rng: mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Between returns a uniform integer in the closed range [lo, hi].
func (s *Source) Between(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rng.IntN(hi-lo+1)
}

// IntN returns a uniform integer in [0, n). n must be positive.
func (s *Source) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// Float returns a uniform float64 in [0, 1).
func (s *Source) Float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// cryptoSeed generates a seed using crypto/rand.
func cryptoSeed() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// This should never happen; any constant still yields a valid stream.
		return 0x5eed
	}
	return binary.LittleEndian.Uint64(buf[:])
}
