package dialer

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"time"

	"github.com/frankli0324/go-http1/internal/http"
	"github.com/frankli0324/go-http1/utils/netpool"
)

// DefaultPool is shared by every CoreDialer that has no pool of its own.
var DefaultPool = netpool.NewGroup(netpool.Config{})

func init() {
	DefaultPool.StartSweeper(context.Background(), time.Minute)
}

var schemes = map[string]string{
	"http": "80", "https": "443",
}

var zeroDialer net.Dialer

func (d *CoreDialer) pool() *netpool.Group {
	if d.ConnPool != nil {
		return d.ConnPool
	}
	return DefaultPool
}

// Dial hands out an idle connection for the route of r, or establishes a
// new one.
func (d *CoreDialer) Dial(ctx context.Context, r *http.PreparedRequest) (http.Conn, error) {
	proxy, err := d.proxyFor(ctx, r)
	if err != nil {
		return nil, err
	}
	host, port := r.Addr()
	route := netpool.Route{Host: host, Port: port, TLS: r.IsTLS()}
	if proxy != nil {
		route.Proxy = proxy.Redacted()
	}
	c, err := d.pool().Connect(ctx, route, func(ctx context.Context) (net.Conn, error) {
		if d.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.ConnectTimeout)
			defer cancel()
		}
		return d.dial(ctx, r.U, host, port, proxy)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (d *CoreDialer) dial(ctx context.Context, remote *url.URL, host, port string, proxy *url.URL) (conn net.Conn, err error) {
	if proxy != nil {
		conn, err = d.DialContextOverProxy(ctx, remote, proxy)
	} else {
		conn, err = d.DialContext(ctx, d.ResolveConfig, host, port)
	}
	if err != nil {
		return nil, err
	}
	if remote.Scheme == "https" {
		return d.handshake(ctx, conn, d.TLSConfig, host)
	}
	return conn, nil
}

// DialContext opens a TCP connection to host:port honoring the resolver
// configuration. This part of logic may be reused when wrapping
// *[CoreDialer] into a new custom [Dialer].
func (d *CoreDialer) DialContext(ctx context.Context, cfg *ResolveConfig, host, port string) (net.Conn, error) {
	network, dialer, dialctx, dst := "tcp", &zeroDialer, ctx, net.JoinHostPort(host, port)
	if cfg != nil {
		switch cfg.Network {
		case "ip4":
			network = "tcp4"
		case "ip6":
			network = "tcp6"
		}
		if static, ok := cfg.StaticHosts[host]; ok {
			dst = net.JoinHostPort(static, port)
		}
		if dns := cfg.CustomDNSServer; dns != "" {
			dialctx = dnsServerCtx{dialctx, dns}
			dialer = &customDNSDialer
		}
	}
	return dialer.DialContext(dialctx, network, dst)
}

func (d *CoreDialer) handshake(ctx context.Context, conn net.Conn, cfg *tls.Config, serverName string) (net.Conn, error) {
	config := cfg.Clone()
	if config == nil {
		config = &tls.Config{}
	}
	if config.ServerName == "" {
		config.ServerName = serverName
	}
	config.NextProtos = []string{"http/1.1"}
	c := tls.Client(conn, config)
	if err := c.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}
