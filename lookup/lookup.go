// Package lookup resolves an image to its metadata: hash the image, load the
// index, search it and fetch the nearest entry's metadata blob.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"perceptive/database"
	"perceptive/fetcher"
	"perceptive/imageprocessor"
	"perceptive/index"
	"perceptive/logging"
	"perceptive/types"
)

var (
	// ErrIndexUnavailable means no usable index could be loaded or fetched
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrMetadataUnavailable means the nearest match's metadata could not be fetched
	ErrMetadataUnavailable = errors.New("metadata unavailable")
)

// Config controls where the index comes from and how far a match may be
type Config struct {
	IndexPath   string
	LocalIndex  string
	ExportIndex string
	MaxDistance int
}

// ContentSource fetches JSON from the content network. *fetcher.ContentFetcher
// implements it.
type ContentSource interface {
	FetchJSON(ctx context.Context, path string, v interface{}) error
}

// Result is the outcome of a lookup. Found is false when no index entry was
// within range, which is not an error.
type Result struct {
	Image     string
	Hash      types.Hash
	IndexSize int
	Matches   []index.Match
	Address   types.ContentAddress
	Metadata  json.RawMessage
	Found     bool
}

// Lookup runs the hash, search and fetch sequence
type Lookup struct {
	cfg    Config
	hasher imageprocessor.Hasher
	source ContentSource
	client *http.Client
	out    io.Writer
}

// New creates a Lookup. client downloads remote images; out receives
// progress messages and may be nil.
func New(cfg Config, hasher imageprocessor.Hasher, source ContentSource, client *http.Client, out io.Writer) *Lookup {
	if out == nil {
		out = io.Discard
	}
	return &Lookup{cfg: cfg, hasher: hasher, source: source, client: client, out: out}
}

// Run looks up the metadata of image, a local path or an http(s) URL
func (l *Lookup) Run(ctx context.Context, image string) (*Result, error) {
	start := time.Now()
	result := &Result{Image: image}

	if imageprocessor.IsRemote(image) {
		fmt.Fprintf(l.out, "Fetching remote image from %s\n", image)
	}
	hash, err := imageprocessor.HashImage(ctx, l.hasher, l.client, image)
	if err != nil {
		return nil, err
	}
	result.Hash = hash

	fmt.Fprintf(l.out, "Searching with input image %s\n", image)
	fmt.Fprintf(l.out, "perceptual hash: %x\n", uint64(hash))

	idx, err := l.LoadIndex(ctx)
	if err != nil {
		return nil, err
	}
	result.IndexSize = idx.Len()

	if l.cfg.ExportIndex != "" {
		stats, err := database.ExportIndexFile(l.cfg.ExportIndex, idx)
		if err != nil {
			return nil, fmt.Errorf("cannot export index: %w", err)
		}
		fmt.Fprintf(l.out, "Exported %d index entries (%d distinct content addresses) to %s\n",
			stats.TotalEntries, stats.UniqueAddresses, l.cfg.ExportIndex)
	}

	matches, err := index.SearchMatches(idx, hash, l.cfg.MaxDistance)
	if err != nil {
		return nil, err
	}
	result.Matches = matches
	logging.DebugLog("Search of %d entries found %d matches within distance %d",
		idx.Len(), len(matches), l.cfg.MaxDistance)

	if len(matches) == 0 {
		logging.DebugLog("Lookup of %s finished in %v without a match", image, time.Since(start))
		return result, nil
	}

	nearest := matches[0]
	result.Address = nearest.Address
	logging.DebugLog("Nearest match %s at distance %d -> %s", nearest.Key, nearest.Distance, nearest.Address)

	fmt.Fprintf(l.out, "Fetching metadata from %s\n", fetcher.NormalizePath(string(nearest.Address)))
	var meta json.RawMessage
	if err := l.source.FetchJSON(ctx, string(nearest.Address), &meta); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
	}
	result.Metadata = meta
	result.Found = true

	logging.DebugLog("Lookup of %s finished in %v", image, time.Since(start))
	return result, nil
}

// LoadIndex reads the local index if one is configured, otherwise fetches it
// from the content network
func (l *Lookup) LoadIndex(ctx context.Context) (*index.Index, error) {
	if l.cfg.LocalIndex != "" {
		idx, err := loadLocalIndex(l.cfg.LocalIndex)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
		}
		logging.DebugLog("Loaded %d index entries from %s", idx.Len(), l.cfg.LocalIndex)
		return idx, nil
	}

	var raw json.RawMessage
	if err := l.source.FetchJSON(ctx, l.cfg.IndexPath, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	idx, err := index.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIndexUnavailable, l.cfg.IndexPath, err)
	}
	logging.DebugLog("Fetched %d index entries from %s", idx.Len(), l.cfg.IndexPath)
	return idx, nil
}

func loadLocalIndex(path string) (*index.Index, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return database.LoadIndexFile(path)
	default:
		return index.LoadFile(path)
	}
}
