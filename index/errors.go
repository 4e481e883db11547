package index

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedIndex is returned when index data is not a JSON object of string pairs
	ErrMalformedIndex = errors.New("malformed index")

	// ErrInvalidIndexEntry is returned when an index key is not a hexadecimal hash
	ErrInvalidIndexEntry = errors.New("invalid index entry")
)

// InvalidEntryError names the index key that failed to parse during a search
type InvalidEntryError struct {
	Key string
	Err error
}

func (e *InvalidEntryError) Error() string {
	return fmt.Sprintf("invalid index entry %q: %v", e.Key, e.Err)
}

func (e *InvalidEntryError) Unwrap() error { return e.Err }

// Is reports InvalidEntryError as ErrInvalidIndexEntry
func (e *InvalidEntryError) Is(target error) bool {
	return target == ErrInvalidIndexEntry
}
