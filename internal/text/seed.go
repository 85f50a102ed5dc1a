package text

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// seedFromString returns a 64-bit seed from an arbitrary string using SHA256.
func seedFromString(s string) uint64 {
	h := sha256.Sum256([]byte(s))
	return binary.LittleEndian.Uint64(h[:8])
}

// derive returns a child seed for label using HMAC-SHA256 keyed by base.
func derive(base uint64, label string) uint64 {
	key := make([]byte, 8)
	binary.LittleEndian.PutUint64(key, base)
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(label))
	return binary.LittleEndian.Uint64(m.Sum(nil)[:8])
}

// stream is a SplitMix64 generator; equal seeds give equal sequences.
type stream struct{ state uint64 }

func newStream(seed uint64) *stream { return &stream{state: seed} }

func (s *stream) next() uint64 {
	s.state += 0x9E3779B97F4A7C15
	z := s.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func (s *stream) intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.next() % uint64(n))
}

// pick returns k distinct entries of list in stream order.
func (s *stream) pick(list []string, k int) []string {
	idx := make([]int, len(list))
	for i := range idx {
		idx[i] = i
	}
	if k > len(idx) {
		k = len(idx)
	}
	out := make([]string, 0, k)
	for i := 0; i < k; i++ {
		j := i + s.intn(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
		out = append(out, list[idx[i]])
	}
	return out
}

func (s *stream) child(label string) *stream { return newStream(derive(s.state, label)) }
