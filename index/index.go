// Package index holds the perceptual hash index and the nearest-match search over it.
package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"perceptive/types"
)

// Entry is one key/address pair of the index, in enumeration order
type Entry struct {
	Key     string
	Address types.ContentAddress
}

// Index maps hex-encoded perceptual hashes to content addresses.
// Entries enumerate in insertion order, which for JSON input is source order.
// An Index is read-only once loaded.
type Index struct {
	entries   []Entry
	positions map[string]int
}

// New returns an empty index
func New() *Index {
	return &Index{positions: make(map[string]int)}
}

// Add inserts or replaces an entry. A replaced key keeps its original position.
func (idx *Index) Add(key string, address types.ContentAddress) {
	if pos, ok := idx.positions[key]; ok {
		idx.entries[pos].Address = address
		return
	}
	idx.positions[key] = len(idx.entries)
	idx.entries = append(idx.entries, Entry{Key: key, Address: address})
}

// Len returns the number of entries
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// Entries returns a copy of the entries in enumeration order
func (idx *Index) Entries() []Entry {
	if idx == nil {
		return nil
	}
	out := make([]Entry, len(idx.entries))
	copy(out, idx.entries)
	return out
}

// Lookup returns the address stored under key
func (idx *Index) Lookup(key string) (types.ContentAddress, bool) {
	if idx == nil {
		return "", false
	}
	pos, ok := idx.positions[key]
	if !ok {
		return "", false
	}
	return idx.entries[pos].Address, true
}

// Parse parses JSON index data
func Parse(data []byte) (*Index, error) {
	return Read(bytes.NewReader(data))
}

// LoadFile loads an index from a local JSON file
func LoadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open index file %s: %w", path, err)
	}
	defer f.Close()

	idx, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return idx, nil
}

// Read parses a JSON object of string to string pairs from r.
// Keys and values are not validated here; bad keys surface in Search.
func Read(r io.Reader) (*Index, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIndex, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrMalformedIndex)
	}

	idx := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedIndex, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected token %v", ErrMalformedIndex, tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: value for %q: %v", ErrMalformedIndex, key, err)
		}

		// null would unmarshal into a string silently
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '"' {
			return nil, fmt.Errorf("%w: value for %q is not a string", ErrMalformedIndex, key)
		}
		var address string
		if err := json.Unmarshal(raw, &address); err != nil {
			return nil, fmt.Errorf("%w: value for %q: %v", ErrMalformedIndex, key, err)
		}

		idx.Add(key, types.ContentAddress(address))
	}

	// Closing brace
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIndex, err)
	}

	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after index object", ErrMalformedIndex)
	}

	return idx, nil
}
