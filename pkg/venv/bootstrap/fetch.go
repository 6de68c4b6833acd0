package bootstrap

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/net/proxy"

	venverrors "github.com/provide-io/flavor/go/venv/pkg/venv/errors"
)

// maxArchiveSize caps a downloaded wheel.
const maxArchiveSize = 64 << 20

// Network downloads archives with one blocking GET, without retries or
// mirrors. Successful downloads are stored in the cache.
type Network struct {
	client  *http.Client
	cache   *Cache
	offline bool
	logger  hclog.Logger
}

// NewNetwork creates a Network source. cache may be nil.
func NewNetwork(cache *Cache, offline bool, logger hclog.Logger) *Network {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Network{
		client:  &http.Client{Transport: newTransport(), Timeout: 2 * time.Minute},
		cache:   cache,
		offline: offline,
		logger:  logger,
	}
}

// newTransport honours HTTP(S)_PROXY for HTTP proxies and ALL_PROXY for
// SOCKS5, NO_PROXY applies to both.
func newTransport() *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment

	dialer := proxy.FromEnvironmentUsing(&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second})
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}
	return transport
}

func (n *Network) Fetch(ctx context.Context, pkg *Package) ([]byte, Origin, error) {
	if n.offline {
		return nil, "", venverrors.Wrap(venverrors.ErrNetwork, nil,
			"%s is not available offline", pkg.Filename)
	}

	n.logger.Info("🌐 Downloading archive", "package", pkg.String(), "url", pkg.URL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pkg.URL, nil)
	if err != nil {
		return nil, "", venverrors.Wrap(venverrors.ErrNetwork, err, "invalid URL %s", pkg.URL)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, "", venverrors.Wrap(venverrors.ErrNetwork, err, "fetching %s", pkg.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", venverrors.Wrap(venverrors.ErrNetwork, nil,
			"fetching %s: unexpected status %s", pkg.URL, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSize+1))
	if err != nil {
		return nil, "", venverrors.Wrap(venverrors.ErrNetwork, err, "reading %s", pkg.URL)
	}
	if len(data) > maxArchiveSize {
		return nil, "", venverrors.Wrap(venverrors.ErrNetwork, nil,
			"%s exceeds %d bytes", pkg.URL, maxArchiveSize)
	}

	if n.cache != nil {
		if err := n.cache.Store(pkg, data); err != nil {
			n.logger.Warn("⚠️ Failed to cache archive", "package", pkg.String(), "error", err)
		}
	}
	n.logger.Debug("✅ Archive downloaded", "package", pkg.String(), "bytes", len(data))
	return data, OriginNetwork, nil
}

// CloseIdleConnections releases pooled connections.
func (n *Network) CloseIdleConnections() {
	n.client.CloseIdleConnections()
}
