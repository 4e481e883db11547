package fetcher

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	ma "github.com/multiformats/go-multiaddr"
)

const (
	// DefaultDaemonPort is the IPFS RPC API port
	DefaultDaemonPort = 5001

	// DefaultDaemonTimeout bounds the identity probe and each cat call
	DefaultDaemonTimeout = 30 * time.Second
)

// Daemon fetches content through the RPC API of a local IPFS daemon
type Daemon struct {
	scheme string
	host   string
	port   int
	shell  *shell.Shell
}

// ParseDaemonAddr accepts host, host:port, http(s)://host:port or a
// multiaddr such as /ip4/127.0.0.1/tcp/5001
func ParseDaemonAddr(addr string) (string, int, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", 0, fmt.Errorf("%w: empty daemon address", ErrConfiguration)
	}

	switch {
	case strings.HasPrefix(addr, "/"):
		return parseMultiaddr(addr)

	case strings.HasPrefix(addr, "http://"), strings.HasPrefix(addr, "https://"):
		u, err := url.Parse(addr)
		if err != nil || u.Hostname() == "" {
			return "", 0, fmt.Errorf("%w: invalid daemon address %q", ErrConfiguration, addr)
		}
		if u.Port() == "" {
			return u.Hostname(), DefaultDaemonPort, nil
		}
		port, err := parsePort(u.Port())
		if err != nil {
			return "", 0, fmt.Errorf("%w: daemon address %q: %v", ErrConfiguration, addr, err)
		}
		return u.Hostname(), port, nil

	case !strings.Contains(addr, ":"):
		return addr, DefaultDaemonPort, nil
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("%w: invalid daemon address %q: %v", ErrConfiguration, addr, err)
	}
	port, err := parsePort(portStr)
	if err != nil || host == "" {
		return "", 0, fmt.Errorf("%w: invalid daemon address %q", ErrConfiguration, addr)
	}
	return host, port, nil
}

func parseMultiaddr(addr string) (string, int, error) {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return "", 0, fmt.Errorf("%w: invalid daemon multiaddr %q: %v", ErrConfiguration, addr, err)
	}

	var host string
	for _, code := range []int{ma.P_IP4, ma.P_IP6, ma.P_DNS4, ma.P_DNS6, ma.P_DNS} {
		if v, err := m.ValueForProtocol(code); err == nil {
			host = v
			break
		}
	}
	if host == "" {
		return "", 0, fmt.Errorf("%w: daemon multiaddr %q has no host", ErrConfiguration, addr)
	}

	port := DefaultDaemonPort
	if v, err := m.ValueForProtocol(ma.P_TCP); err == nil {
		if port, err = parsePort(v); err != nil {
			return "", 0, fmt.Errorf("%w: daemon multiaddr %q: %v", ErrConfiguration, addr, err)
		}
	}
	return host, port, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

// NewDaemon creates a daemon backend. A zero timeout uses DefaultDaemonTimeout.
func NewDaemon(addr string, timeout time.Duration) (*Daemon, error) {
	host, port, err := ParseDaemonAddr(addr)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultDaemonTimeout
	}

	d := &Daemon{scheme: "http", host: host, port: port}
	if strings.HasPrefix(strings.TrimSpace(addr), "https://") {
		d.scheme = "https"
	}
	d.shell = shell.NewShellWithClient(d.Endpoint(), &http.Client{Timeout: timeout})
	return d, nil
}

// Name identifies the backend in logs and errors
func (d *Daemon) Name() string { return "daemon" }

// Addr returns host:port of the daemon
func (d *Daemon) Addr() string {
	return net.JoinHostPort(d.host, strconv.Itoa(d.port))
}

// Endpoint returns the base URL of the RPC API, keeping https when it was asked for
func (d *Daemon) Endpoint() string {
	return d.scheme + "://" + d.Addr()
}

// Identity asks the daemon for its peer ID. It doubles as the liveness probe.
func (d *Daemon) Identity(ctx context.Context) (string, error) {
	var out shell.IdOutput
	if err := d.shell.Request("id").Exec(ctx, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("daemon at %s returned an empty identity", d.Addr())
	}
	return out.ID, nil
}

// Fetch cats path through the daemon and returns the raw bytes
func (d *Daemon) Fetch(ctx context.Context, path string) ([]byte, error) {
	resp, err := d.shell.Request("cat", path).Send(ctx)
	if err != nil {
		return nil, &FetchError{Path: path, Backend: d.Name(), Transport: true, Err: err}
	}
	defer resp.Close()

	// The daemon answered but refused the request
	if resp.Error != nil {
		return nil, &FetchError{Path: path, Backend: d.Name(), Err: resp.Error}
	}

	data, err := io.ReadAll(resp.Output)
	if err != nil {
		return nil, &FetchError{Path: path, Backend: d.Name(), Transport: true, Err: err}
	}
	return data, nil
}
