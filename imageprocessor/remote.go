package imageprocessor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"perceptive/logging"
	"perceptive/types"
)

// IsRemote reports whether pathOrURL is an http(s) URL
func IsRemote(pathOrURL string) bool {
	u, err := url.Parse(pathOrURL)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// HashImage hashes a local file or an http(s) URL. Remote images are
// downloaded to a temporary file that is removed before HashImage returns,
// on success and failure alike.
func HashImage(ctx context.Context, h Hasher, client *http.Client, pathOrURL string) (types.Hash, error) {
	if !IsRemote(pathOrURL) {
		localPath := strings.TrimPrefix(pathOrURL, "file://")
		if _, err := os.Stat(localPath); err != nil {
			return 0, hashingFailure(localPath, fmt.Errorf("file does not exist: %w", err))
		}
		return h.Hash(localPath)
	}

	tempFile, err := DownloadToTempFile(ctx, client, pathOrURL)
	if err != nil {
		return 0, hashingFailure(pathOrURL, err)
	}
	defer os.Remove(tempFile)

	hash, err := h.Hash(tempFile)
	if err != nil {
		return 0, hashingFailure(pathOrURL, err)
	}
	return hash, nil
}

// DownloadToTempFile saves the body at uri to a new temporary file and returns
// its path. The caller owns the file. On error nothing is left behind.
func DownloadToTempFile(ctx context.Context, client *http.Client, uri string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	// Keep the extension so the loader registry can pick a loader
	ext := ""
	if u, err := url.Parse(uri); err == nil {
		ext = strings.ToLower(path.Ext(u.Path))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", fmt.Errorf("error downloading image: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error downloading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("error downloading image: unexpected status %s", resp.Status)
	}

	f, err := os.CreateTemp("", "perceptive-*"+ext)
	if err != nil {
		return "", fmt.Errorf("error saving image: %w", err)
	}

	n, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("error saving image: %w", err)
	}

	logging.DebugLog("Downloaded %s to %s (%d bytes)", uri, f.Name(), n)
	return f.Name(), nil
}
