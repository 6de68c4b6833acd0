package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provide-io/flavor/go/venv/internal/cachedir"
	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
)

func newIndex(t *testing.T, archives map[string][]byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		data, ok := archives[path.Base(r.URL.Path)]
		if !ok || !strings.HasPrefix(r.URL.Path, "/py3/") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func wheelPackage(indexURL string) *Package {
	return Select(Selection{NoPip: true, NoSetuptools: true}, indexURL)[0]
}

func TestNetwork_DownloadsAndCaches(t *testing.T) {
	archive := []byte("wheel archive bytes")
	srv, hits := newIndex(t, map[string][]byte{"wheel-0.41.2-py3-none-any.whl": archive})

	dir := cachedir.New(t.TempDir())
	cache := NewCache(dir, nil)
	network := NewNetwork(cache, false, nil)
	defer network.CloseIdleConnections()

	pkg := wheelPackage(srv.URL)
	data, origin, err := network.Fetch(context.Background(), pkg)
	require.NoError(t, err)
	assert.Equal(t, archive, data)
	assert.Equal(t, OriginNetwork, origin)

	cached, err := os.ReadFile(dir.Join(cachedir.WheelsDir, pkg.Filename))
	require.NoError(t, err)
	assert.Equal(t, archive, cached)

	// The second lookup is served from the cache
	chain := Chain{NewTable(OriginEmbedded, nil), cache, network}
	data, origin, err = chain.Fetch(context.Background(), pkg)
	require.NoError(t, err)
	assert.Equal(t, archive, data)
	assert.Equal(t, OriginCache, origin)
	assert.Equal(t, int32(1), hits.Load())
}

func TestNetwork_NotFound(t *testing.T) {
	srv, _ := newIndex(t, nil)
	network := NewNetwork(nil, false, nil)
	defer network.CloseIdleConnections()

	_, _, err := network.Fetch(context.Background(), wheelPackage(srv.URL))
	assert.ErrorIs(t, err, venverrors.ErrNetwork)
	assert.Contains(t, err.Error(), "404")
}

func TestNetwork_Offline(t *testing.T) {
	srv, hits := newIndex(t, nil)
	network := NewNetwork(nil, true, nil)

	_, _, err := network.Fetch(context.Background(), wheelPackage(srv.URL))
	assert.ErrorIs(t, err, venverrors.ErrNetwork)
	assert.Equal(t, int32(0), hits.Load())
}

func TestNetwork_Unreachable(t *testing.T) {
	srv, _ := newIndex(t, nil)
	url := srv.URL
	srv.Close()

	network := NewNetwork(nil, false, nil)
	_, _, err := network.Fetch(context.Background(), wheelPackage(url))
	assert.ErrorIs(t, err, venverrors.ErrNetwork)
}

func TestChain_PrefersEarlierSources(t *testing.T) {
	pkg := wheelPackage("")
	chain := Chain{
		NewTable(OriginEmbedded, map[string][]byte{pkg.Filename: []byte("embedded")}),
		NewTable(OriginCache, map[string][]byte{pkg.Filename: []byte("cached")}),
	}

	data, origin, err := chain.Fetch(context.Background(), pkg)
	require.NoError(t, err)
	assert.Equal(t, "embedded", string(data))
	assert.Equal(t, OriginEmbedded, origin)

	_, _, err = Chain{NewTable(OriginEmbedded, nil)}.Fetch(context.Background(), pkg)
	assert.ErrorIs(t, err, venverrors.ErrNetwork)
}

func TestResourceSource_MissingExecutable(t *testing.T) {
	src := NewResourceSource("/nonexistent/flavor-venv", nil)
	_, _, err := src.Fetch(context.Background(), wheelPackage(""))
	assert.ErrorIs(t, err, errNotFound)
}
