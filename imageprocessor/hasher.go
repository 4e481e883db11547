package imageprocessor

import (
	"errors"
	"fmt"

	"perceptive/types"
)

// ErrHashingFailure is returned when no hash could be computed for an image.
// A zero hash with a nil error is a real hash, not a failure.
var ErrHashingFailure = errors.New("hashing failure")

// Hasher computes the perceptual hash of a local image file
type Hasher interface {
	Hash(path string) (types.Hash, error)
}

// Hasher names accepted by NewHasher
const (
	HasherGocv        = "gocv"
	HasherGoImageHash = "goimagehash"
)

// NewHasher returns the hasher registered under name
func NewHasher(name string) (Hasher, error) {
	switch name {
	case "", HasherGocv:
		return NewGocvHasher(), nil
	case HasherGoImageHash:
		return &GoImageHasher{}, nil
	default:
		return nil, fmt.Errorf("unknown hasher %q (want %s or %s)", name, HasherGocv, HasherGoImageHash)
	}
}

func hashingFailure(path string, err error) error {
	if errors.Is(err, ErrHashingFailure) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrHashingFailure, path, err)
}
