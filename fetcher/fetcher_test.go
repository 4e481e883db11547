package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCID      = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
	testCIDv1    = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
	testIndexKey = "/ipns/QmRW2PTGpWk2X5sDbAvyDLV8668skcF8ADr1FcaP8VtC1q"
)

// fakeGateway serves fixed bodies by request path
type fakeGateway struct {
	*httptest.Server
	bodies map[string]string
	hits   atomic.Int32
}

func newFakeGateway(t *testing.T, bodies map[string]string) *fakeGateway {
	t.Helper()
	g := &fakeGateway{bodies: bodies}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.hits.Add(1)
		body, ok := g.bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(g.Close)
	return g
}

// fakeDaemon implements the id and cat calls of the IPFS RPC API
type fakeDaemon struct {
	*httptest.Server
	files    map[string]string
	failID   bool
	breakCat bool
	idCalls  atomic.Int32
	catCalls atomic.Int32
}

func newFakeDaemon(t *testing.T, files map[string]string) *fakeDaemon {
	t.Helper()
	d := &fakeDaemon{files: files}
	d.Server = httptest.NewServer(http.HandlerFunc(d.serve))
	t.Cleanup(d.Close)
	return d
}

func (d *fakeDaemon) serve(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v0/id":
		d.idCalls.Add(1)
		if d.failID {
			writeDaemonError(w, "daemon not ready")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"ID": "12D3KooWFakePeer"})

	case "/api/v0/cat":
		d.catCalls.Add(1)
		if d.breakCat {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		content, ok := d.files[r.URL.Query().Get("arg")]
		if !ok {
			writeDaemonError(w, "no link named")
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(content))

	default:
		http.NotFound(w, r)
	}
}

func writeDaemonError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]interface{}{"Message": msg, "Code": 0, "Type": "error"})
}

func TestNewRequiresABackend(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestNewRejectsBadAddresses(t *testing.T) {
	_, err := New(context.Background(), Config{GatewayURL: "gateway.ipfs.io"})
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = New(context.Background(), Config{DaemonAddr: "localhost:notaport"})
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestGatewayOnly(t *testing.T) {
	gw := newFakeGateway(t, map[string]string{"/ipfs/" + testCID: `{"title": "sunset"}`})

	f, err := New(context.Background(), Config{GatewayURL: gw.URL + "/"})
	require.NoError(t, err)
	assert.Equal(t, "gateway", f.Mode())
	assert.False(t, f.Demoted())

	// Bare address is prefixed with /ipfs/
	data, err := f.Fetch(context.Background(), testCID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title": "sunset"}`, string(data))

	data, err = f.Fetch(context.Background(), "/ipfs/"+testCID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title": "sunset"}`, string(data))
	assert.EqualValues(t, 2, gw.hits.Load())
}

func TestGatewayErrors(t *testing.T) {
	gw := newFakeGateway(t, map[string]string{"/ipfs/" + testCID: `not json`})

	f, err := New(context.Background(), Config{GatewayURL: gw.URL})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), testCID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
	assert.True(t, errors.Is(err, ErrInvalidJSON))

	_, err = f.Fetch(context.Background(), testCIDv1)
	require.Error(t, err)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "gateway", fe.Backend)
	assert.False(t, fe.Transport)
}

func TestGatewayTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f, err := New(context.Background(), Config{GatewayURL: srv.URL, GatewayTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), testCID)
	require.Error(t, err)
	assert.True(t, isTransportError(err))
}

func TestDaemonServesFetches(t *testing.T) {
	daemon := newFakeDaemon(t, map[string]string{"/ipfs/" + testCID: `{"source": "daemon"}`})
	gw := newFakeGateway(t, nil)

	f, err := New(context.Background(), Config{DaemonAddr: daemon.URL, GatewayURL: gw.URL})
	require.NoError(t, err)
	assert.Equal(t, "daemon", f.Mode())

	var meta map[string]string
	require.NoError(t, f.FetchJSON(context.Background(), testCID, &meta))
	assert.Equal(t, "daemon", meta["source"])
	assert.EqualValues(t, 1, daemon.idCalls.Load())
	assert.EqualValues(t, 0, gw.hits.Load())
}

func TestUnreachableDaemonDemotedOnce(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadAddr := dead.URL
	dead.Close()

	gw := newFakeGateway(t, map[string]string{"/ipfs/" + testCID: `{}`})

	f, err := New(context.Background(), Config{DaemonAddr: deadAddr, GatewayURL: gw.URL})
	require.NoError(t, err)
	assert.True(t, f.Demoted())
	assert.Equal(t, "gateway", f.Mode())

	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), testCID)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, gw.hits.Load())
}

func TestFailedProbeNeverRetried(t *testing.T) {
	daemon := newFakeDaemon(t, map[string]string{"/ipfs/" + testCID: `{}`})
	daemon.failID = true
	gw := newFakeGateway(t, map[string]string{"/ipfs/" + testCID: `{}`})

	f, err := New(context.Background(), Config{DaemonAddr: daemon.URL, GatewayURL: gw.URL})
	require.NoError(t, err)
	assert.True(t, f.Demoted())

	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), testCID)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, daemon.idCalls.Load())
	assert.EqualValues(t, 0, daemon.catCalls.Load())
	assert.EqualValues(t, 3, gw.hits.Load())
}

func TestTransportErrorFallsBackPerCall(t *testing.T) {
	daemon := newFakeDaemon(t, nil)
	daemon.breakCat = true
	gw := newFakeGateway(t, map[string]string{"/ipfs/" + testCID: `{"source": "gateway"}`})

	f, err := New(context.Background(), Config{DaemonAddr: daemon.URL, GatewayURL: gw.URL})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		data, err := f.Fetch(context.Background(), testCID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"source": "gateway"}`, string(data))
	}

	// The daemon is not demoted by a mid-call failure
	assert.Equal(t, "daemon", f.Mode())
	assert.False(t, f.Demoted())
	assert.EqualValues(t, 2, daemon.catCalls.Load())
	assert.EqualValues(t, 2, gw.hits.Load())
}

func TestDaemonAPIErrorDoesNotFallBack(t *testing.T) {
	daemon := newFakeDaemon(t, map[string]string{})
	gw := newFakeGateway(t, map[string]string{"/ipfs/" + testCID: `{}`})

	f, err := New(context.Background(), Config{DaemonAddr: daemon.URL, GatewayURL: gw.URL})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), testCID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
	assert.Contains(t, err.Error(), "no link named")
	assert.EqualValues(t, 0, gw.hits.Load())
}

func TestTransportErrorWithoutGateway(t *testing.T) {
	daemon := newFakeDaemon(t, nil)
	daemon.breakCat = true

	f, err := New(context.Background(), Config{DaemonAddr: daemon.URL})
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), testCID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
}

func TestForceGatewaySkipsDaemon(t *testing.T) {
	daemon := newFakeDaemon(t, map[string]string{"/ipfs/" + testCID: `{}`})
	gw := newFakeGateway(t, map[string]string{"/ipfs/" + testCID: `{}`})

	f, err := New(context.Background(), Config{DaemonAddr: daemon.URL, GatewayURL: gw.URL, ForceGateway: true})
	require.NoError(t, err)
	assert.Equal(t, "gateway", f.Mode())

	_, err = f.Fetch(context.Background(), testCID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, daemon.idCalls.Load())
	assert.EqualValues(t, 0, daemon.catCalls.Load())
}

func TestNoUsableBackend(t *testing.T) {
	daemon := newFakeDaemon(t, nil)
	daemon.failID = true

	f, err := New(context.Background(), Config{DaemonAddr: daemon.URL})
	require.NoError(t, err)
	assert.Equal(t, "none", f.Mode())

	_, err = f.Fetch(context.Background(), testIndexKey)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
	assert.True(t, errors.Is(err, ErrNoBackend))
}

func TestHTTPSDaemonIsNotDowngraded(t *testing.T) {
	daemon := newFakeDaemon(t, nil)
	gw := newFakeGateway(t, nil)

	// The fake daemon speaks plain HTTP, so a TLS client cannot reach it
	addr := "https://" + strings.TrimPrefix(daemon.URL, "http://")
	f, err := New(context.Background(), Config{DaemonAddr: addr, GatewayURL: gw.URL})
	require.NoError(t, err)
	assert.True(t, f.Demoted())
	assert.EqualValues(t, 0, daemon.idCalls.Load())
}

func TestOpaqueContentAddressReachesGateway(t *testing.T) {
	gw := newFakeGateway(t, map[string]string{"/ipfs/cid1": `{"ok": true}`})

	f, err := New(context.Background(), Config{GatewayURL: gw.URL})
	require.NoError(t, err)

	data, err := f.Fetch(context.Background(), "cid1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(data))
	assert.EqualValues(t, 1, gw.hits.Load())

	// An address the gateway does not know fails there, not before
	_, err = f.Fetch(context.Background(), "/ipfs/example.com")
	require.Error(t, err)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "gateway", fe.Backend)
	assert.Equal(t, "/ipfs/example.com", fe.Path)
	assert.EqualValues(t, 2, gw.hits.Load())
}

func TestFetchJSONDecodeFailure(t *testing.T) {
	gw := newFakeGateway(t, map[string]string{testIndexKey: `["a", "b"]`})

	f, err := New(context.Background(), Config{GatewayURL: gw.URL})
	require.NoError(t, err)

	var obj map[string]string
	err = f.FetchJSON(context.Background(), testIndexKey, &obj)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
}
