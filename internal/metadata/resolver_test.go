package metadata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filipviz/juicebox-tweeter/internal/config"
	"github.com/filipviz/juicebox-tweeter/internal/model"
)

func newGateway(t *testing.T, h http.HandlerFunc) (*IPFS, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	r, err := NewIPFS(config.Metadata{Gateway: srv.URL + "/ipfs/", Timeout: time.Second, CacheSize: 8})
	require.NoError(t, err)
	return r, &hits
}

func TestResolveParsesAndCaches(t *testing.T) {
	r, hits := newGateway(t, func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/ipfs/QmAlpha", req.URL.Path)
		_, _ = w.Write([]byte(`{"name":"Alpha DAO","description":"We **build**","twitter":"@alphadao","logoUri":"ipfs://logo","version":4}`))
	})

	md, err := r.Resolve(context.Background(), "QmAlpha")
	require.NoError(t, err)
	assert.Equal(t, model.Metadata{Name: "Alpha DAO", Description: "We **build**", Twitter: "alphadao", LogoURI: "ipfs://logo"}, md)

	_, err = r.Resolve(context.Background(), "QmAlpha")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolveLocatorForms(t *testing.T) {
	var paths []string
	r, _ := newGateway(t, func(w http.ResponseWriter, req *http.Request) {
		paths = append(paths, req.URL.Path)
		_, _ = w.Write([]byte(`{"name":"x"}`))
	})
	ctx := context.Background()
	for _, loc := range []string{"ipfs://QmOne", "ipfs://ipfs/QmTwo", "/QmThree"} {
		_, err := r.Resolve(ctx, loc)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"/ipfs/QmOne", "/ipfs/QmTwo", "/ipfs/QmThree"}, paths)
}

func TestResolveFailuresYieldEmpty(t *testing.T) {
	tests := []struct {
		name string
		h    http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, _ *http.Request) { http.NotFound(w, nil) }},
		{"not json", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("<html>")) }},
		{"json array", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("[1,2]")) }},
		{"null", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("null")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, hits := newGateway(t, tt.h)
			md, err := r.Resolve(context.Background(), "QmBad")
			assert.True(t, md.Empty())

			var ue *UnavailableError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, "QmBad", ue.Locator)

			// failures are not cached
			_, _ = r.Resolve(context.Background(), "QmBad")
			assert.Equal(t, int32(2), hits.Load())
		})
	}
}

func TestResolveTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	r, err := NewIPFS(config.Metadata{Gateway: srv.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	md, err := r.Resolve(context.Background(), "QmSlow")
	assert.Error(t, err)
	assert.True(t, md.Empty())
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestResolveEmptyLocator(t *testing.T) {
	r, hits := newGateway(t, func(w http.ResponseWriter, _ *http.Request) {})
	md, err := r.Resolve(context.Background(), "  ")
	require.NoError(t, err)
	assert.True(t, md.Empty())
	assert.Equal(t, int32(0), hits.Load())
}
