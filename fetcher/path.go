package fetcher

import (
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"perceptive/logging"
)

const (
	// IPFSPrefix is prepended to paths that do not start with a slash
	IPFSPrefix = "/ipfs/"

	// IPNSPrefix marks mutable names, which are not checked as CIDs
	IPNSPrefix = "/ipns/"
)

// NormalizePath prefixes a bare content address with /ipfs/.
// Paths that already start with a slash are returned unchanged.
func NormalizePath(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return IPFSPrefix + path
}

// rootCID decodes the root segment of an /ipfs/ path. ok is false for
// /ipns/ names and for roots that are not CIDs.
func rootCID(path string) (c cid.Cid, ok bool) {
	if !strings.HasPrefix(path, IPFSPrefix) {
		return cid.Undef, false
	}
	root := strings.TrimPrefix(path, IPFSPrefix)
	if i := strings.IndexByte(root, '/'); i >= 0 {
		root = root[:i]
	}
	c, err := cid.Decode(root)
	if err != nil {
		return cid.Undef, false
	}
	return c, true
}

// describePath logs what is known about a normalized path. Content addresses
// are opaque, so a root that is not a CID is passed on unchanged.
func describePath(path string) {
	c, ok := rootCID(path)
	if !ok {
		logging.DebugLog("Content address %s is not a CID, fetching as is", path)
		return
	}
	if decoded, err := multihash.Decode(c.Hash()); err == nil {
		logging.DebugLog("Content address %s: cid v%d, %s", path, c.Version(), decoded.Name)
	}
}
