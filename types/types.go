package types

import (
	"fmt"
	"math/bits"
	"strconv"
)

// Hash is a 64-bit perceptual hash of an image
type Hash uint64

// String renders the hash as 16 lowercase hex digits, the form used for index keys
func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// ParseHash parses a case-insensitive hexadecimal hash. A leading 0x is tolerated.
func ParseHash(s string) (Hash, error) {
	digits := s
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		digits = s[2:]
	}
	if digits == "" {
		return 0, fmt.Errorf("empty hash %q", s)
	}

	v, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex hash %q: %w", s, err)
	}
	return Hash(v), nil
}

// HammingDistance counts the differing bits between two hashes
func HammingDistance(a, b Hash) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// ContentAddress identifies a metadata blob in the content-addressed network.
// It is opaque: nothing is assumed beyond it being usable as a path segment.
type ContentAddress string

// MatchResult is an ordered list of content addresses, nearest first
type MatchResult []ContentAddress

// First returns the nearest match, if any
func (m MatchResult) First() (ContentAddress, bool) {
	if len(m) == 0 {
		return "", false
	}
	return m[0], true
}
