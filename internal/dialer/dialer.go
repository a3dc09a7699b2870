package dialer

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/frankli0324/go-http1/internal/http"
	"github.com/frankli0324/go-http1/utils/netpool"
)

// Dialer is the [http.Dialer] this package implements, re-declared so
// wrapping dialers don't need to import internal/http.
type Dialer = http.Dialer

// CoreDialer handles pretty much everything related to the actual
// connection: pooling, proxies, resolvers and TLS.
type CoreDialer struct {
	ResolveConfig *ResolveConfig

	TLSConfig *tls.Config // the config to use

	// ConnPool keeps idle connections per route. When nil the process
	// wide default group is used.
	ConnPool    *netpool.Group
	GetProxy    func(ctx context.Context, r *http.Request) (string, error)
	ProxyConfig *ProxyConfig

	// ConnectTimeout bounds establishing a new connection, including the
	// proxy tunnel and the TLS handshake.
	ConnectTimeout time.Duration
}

func (d *CoreDialer) Clone() *CoreDialer {
	pool := d.ConnPool
	if pool != nil {
		pool = pool.NewEmpty()
	}
	return &CoreDialer{
		ResolveConfig:  d.ResolveConfig.Clone(),
		TLSConfig:      d.TLSConfig.Clone(),
		ConnPool:       pool,
		GetProxy:       d.GetProxy,
		ProxyConfig:    d.ProxyConfig.Clone(),
		ConnectTimeout: d.ConnectTimeout,
	}
}

func (d *CoreDialer) Unwrap() Dialer {
	return nil
}

var _ Dialer = (*CoreDialer)(nil)
