// Package fetcher retrieves content from IPFS through a local daemon or an
// HTTP gateway.
//
// The daemon is probed once when the fetcher is built. If the probe fails the
// daemon is dropped for the lifetime of the fetcher and every fetch goes to the
// gateway. A daemon that passed the probe but hits a transport error during a
// fetch is bypassed for that call only: the gateway is tried once, with no
// further retries.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"perceptive/logging"
)

// Backend is one way of reaching the content network. Daemon and Gateway are
// the two implementations.
type Backend interface {
	Name() string
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Config selects the backends of a ContentFetcher. Empty addresses are absent.
type Config struct {
	DaemonAddr     string
	GatewayURL     string
	ForceGateway   bool
	GatewayTimeout time.Duration
	DaemonTimeout  time.Duration
}

// ContentFetcher resolves content network paths to bytes
type ContentFetcher struct {
	daemon  Backend
	gateway Backend

	forceGateway bool
	demoted      bool
}

// New builds a fetcher and probes the daemon, if one is configured and not
// overridden by ForceGateway
func New(ctx context.Context, cfg Config) (*ContentFetcher, error) {
	if cfg.DaemonAddr == "" && cfg.GatewayURL == "" {
		return nil, fmt.Errorf("%w: must provide either an IPFS daemon address or an HTTP gateway URL", ErrConfiguration)
	}

	f := &ContentFetcher{forceGateway: cfg.ForceGateway}

	if cfg.GatewayURL != "" {
		gw, err := NewGateway(cfg.GatewayURL, cfg.GatewayTimeout)
		if err != nil {
			return nil, err
		}
		f.gateway = gw
	}

	if cfg.DaemonAddr == "" {
		return f, nil
	}

	daemon, err := NewDaemon(cfg.DaemonAddr, cfg.DaemonTimeout)
	if err != nil {
		return nil, err
	}

	if cfg.ForceGateway {
		logging.DebugLog("Gateway forced, not using IPFS daemon at %s", daemon.Endpoint())
		return f, nil
	}

	id, err := daemon.Identity(ctx)
	if err != nil {
		f.demoted = true
		logging.LogWarning("IPFS daemon at %s is unreachable, using gateway for all fetches: %v", daemon.Endpoint(), err)
		return f, nil
	}

	logging.DebugLog("Connected to IPFS daemon %s at %s", id, daemon.Endpoint())
	f.daemon = daemon
	return f, nil
}

// Mode reports the backend that fetches go to first
func (f *ContentFetcher) Mode() string {
	switch {
	case f.daemon != nil:
		return f.daemon.Name()
	case f.gateway != nil:
		return f.gateway.Name()
	default:
		return "none"
	}
}

// Demoted reports whether the daemon failed its probe
func (f *ContentFetcher) Demoted() bool { return f.demoted }

// Fetch returns the raw content at path. Bare content addresses are treated
// as /ipfs/ paths.
func (f *ContentFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	normalized := NormalizePath(path)
	describePath(normalized)

	if f.daemon != nil {
		data, err := f.fetchFrom(ctx, f.daemon, normalized)
		if err == nil {
			return data, nil
		}
		if !isTransportError(err) || f.gateway == nil || ctx.Err() != nil {
			return nil, err
		}
		logging.LogWarning("Daemon fetch of %s failed, retrying via gateway: %v", normalized, err)
	}

	if f.gateway == nil {
		return nil, &FetchError{Path: path, Err: ErrNoBackend}
	}
	return f.fetchFrom(ctx, f.gateway, normalized)
}

// FetchJSON fetches path and decodes the JSON content into v
func (f *ContentFetcher) FetchJSON(ctx context.Context, path string, v interface{}) error {
	data, err := f.Fetch(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &FetchError{Path: path, Backend: f.Mode(), Err: fmt.Errorf("cannot decode JSON: %w", err)}
	}
	return nil
}

func (f *ContentFetcher) fetchFrom(ctx context.Context, b Backend, path string) ([]byte, error) {
	start := time.Now()
	data, err := b.Fetch(ctx, path)
	logging.LogFetch(b.Name(), path, time.Since(start), err)
	return data, err
}
