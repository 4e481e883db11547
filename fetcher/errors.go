package fetcher

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when the fetcher cannot be built from its Config
	ErrConfiguration = errors.New("fetcher configuration error")

	// ErrFetch matches every error returned by Fetch and FetchJSON
	ErrFetch = errors.New("fetch failed")

	// ErrNoBackend is wrapped when neither the daemon nor the gateway is usable
	ErrNoBackend = errors.New("no usable backend")

	// ErrInvalidJSON is wrapped when a gateway response body is not JSON
	ErrInvalidJSON = errors.New("response is not valid JSON")
)

// FetchError describes a failed fetch of one path
type FetchError struct {
	Path    string
	Backend string

	// Transport is set when the backend could not be reached or the
	// connection broke; only these failures trigger the gateway fallback
	Transport bool

	Err error
}

func (e *FetchError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("fetch %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("fetch %s via %s: %v", e.Path, e.Backend, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is reports every FetchError as ErrFetch
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

func isTransportError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Transport
}
