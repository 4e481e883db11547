package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultGatewayTimeout bounds every gateway request
const DefaultGatewayTimeout = 15 * time.Second

// Gateway fetches content over plain HTTP GET from an IPFS gateway
type Gateway struct {
	baseURL string
	client  *http.Client
}

// NewGateway creates a gateway backend for baseURL. A zero timeout uses DefaultGatewayTimeout.
func NewGateway(baseURL string, timeout time.Duration) (*Gateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid gateway URL %q", ErrConfiguration, baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultGatewayTimeout
	}

	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Name identifies the backend in logs and errors
func (g *Gateway) Name() string { return "gateway" }

// URL returns the full request URL for path
func (g *Gateway) URL(path string) string {
	return g.baseURL + NormalizePath(path)
}

// Fetch GETs path from the gateway and returns the body, which must be JSON
func (g *Gateway) Fetch(ctx context.Context, path string) ([]byte, error) {
	uri := g.URL(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, &FetchError{Path: path, Backend: g.Name(), Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &FetchError{Path: path, Backend: g.Name(), Transport: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Path: path, Backend: g.Name(), Err: fmt.Errorf("unexpected status %s from %s", resp.Status, uri)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Path: path, Backend: g.Name(), Transport: true, Err: err}
	}

	if !json.Valid(body) {
		return nil, &FetchError{Path: path, Backend: g.Name(), Err: ErrInvalidJSON}
	}

	return body, nil
}
