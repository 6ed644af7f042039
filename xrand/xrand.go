// Package xrand provides the random-bytes source the gateway-election
// contention delay is drawn from. It is an external collaborator
// (spec §2): production code uses System (crypto/rand, falling back to
// math/rand if unavailable), tests inject a Fixed source to make
// contention outcomes deterministic.
package xrand

import (
	crand "crypto/rand"
	"encoding/binary"
	mrand "math/rand"
	"time"
)

// Source yields a value in [0, n) for contention-window sampling.
type Source interface {
	Intn(n int) int
}

// System is the real source: crypto/rand seeded into a bounded draw, with
// a math/rand fallback if crypto/rand is unavailable.
type System struct{}

// Intn implements Source. n must be > 0.
func (System) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	var b [4]byte
	if _, err := crand.Read(b[:]); err == nil {
		return int(binary.LittleEndian.Uint32(b[:]) % uint32(n))
	}
	src := mrand.NewSource(time.Now().UnixNano())
	return mrand.New(src).Intn(n)
}

// Fixed always returns the same value (clamped into range), letting tests
// pin exactly which device wins a contention race.
type Fixed struct {
	Value int
}

// Intn implements Source.
func (f Fixed) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	v := f.Value % n
	if v < 0 {
		v += n
	}
	return v
}

// Sequence returns successive values from a fixed list, repeating the last
// one once exhausted. Useful for tests that need a specific delay the
// first time GatewayElectionDelay is entered and a different one later.
type Sequence struct {
	Values []int
	i      int
}

// Intn implements Source.
func (s *Sequence) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	if len(s.Values) == 0 {
		return 0
	}
	idx := s.i
	if idx >= len(s.Values) {
		idx = len(s.Values) - 1
	} else {
		s.i++
	}
	v := s.Values[idx] % n
	if v < 0 {
		v += n
	}
	return v
}
