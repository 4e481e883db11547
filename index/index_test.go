package index

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perceptive/types"
)

func TestParsePreservesSourceOrder(t *testing.T) {
	idx, err := Parse([]byte(`{"ff": "cid-c", "00": "cid-a", "0f": "cid-b"}`))
	require.NoError(t, err)

	require.Equal(t, 3, idx.Len())
	assert.Equal(t, []Entry{
		{Key: "ff", Address: "cid-c"},
		{Key: "00", Address: "cid-a"},
		{Key: "0f", Address: "cid-b"},
	}, idx.Entries())
}

func TestParseDuplicateKeyKeepsFirstPosition(t *testing.T) {
	idx, err := Parse([]byte(`{"aa": "first", "bb": "other", "aa": "second"}`))
	require.NoError(t, err)

	entries := idx.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "aa", entries[0].Key)
	assert.Equal(t, types.ContentAddress("second"), entries[0].Address)
}

func TestParseEmptyObject(t *testing.T) {
	idx, err := Parse([]byte(` { } `))
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
}

func TestParseDefersKeyValidation(t *testing.T) {
	idx, err := Parse([]byte(`{"not-hex": "cid1", "": ""}`))
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
}

func TestParseMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"not json":       `hello`,
		"array":          `["a", "b"]`,
		"string":         `"abc"`,
		"number value":   `{"ff": 1}`,
		"null value":     `{"ff": null}`,
		"object value":   `{"ff": {"cid": "x"}}`,
		"truncated":      `{"ff": "cid1"`,
		"trailing data":  `{"ff": "cid1"} {}`,
		"trailing comma": `{"ff": "cid1",}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedIndex), "got %v", err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"0f0f": "cid1"}`), 0644))

	idx, err := LoadFile(path)
	require.NoError(t, err)
	addr, ok := idx.Lookup("0f0f")
	assert.True(t, ok)
	assert.Equal(t, types.ContentAddress("cid1"), addr)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMalformedIndex))

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1,2]`), 0644))
	_, err = LoadFile(path)
	assert.True(t, errors.Is(err, ErrMalformedIndex))
}

func TestRead(t *testing.T) {
	idx, err := Read(strings.NewReader(`{"01": "a"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
}

func TestNilIndex(t *testing.T) {
	var idx *Index
	assert.Equal(t, 0, idx.Len())
	assert.Nil(t, idx.Entries())
	_, ok := idx.Lookup("x")
	assert.False(t, ok)
}
