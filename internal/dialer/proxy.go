package dialer

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/url"
	"time"

	"github.com/frankli0324/go-http1/internal/http"
	"github.com/frankli0324/go-http1/internal/transport"
)

type ProxyConfig struct {
	TLSConfig      *tls.Config // the [*tls.Config] to use with proxy, if nil, *[CoreDialer.TLSConfig] will be used
	ResolveLocally bool
	ResolveConfig  *ResolveConfig // overrides the resolver config for dialer for proxy
}

func (c *ProxyConfig) Clone() *ProxyConfig {
	if c == nil {
		return nil
	}
	return &ProxyConfig{
		TLSConfig:      c.TLSConfig.Clone(),
		ResolveLocally: c.ResolveLocally,
		ResolveConfig:  c.ResolveConfig.Clone(),
	}
}

var (
	h1Transport = transport.HTTP1{}

	errProxyReadAhead = errors.New("proxy sent data before the tunnel was used")
)

func (d *CoreDialer) proxyFor(ctx context.Context, r *http.PreparedRequest) (*url.URL, error) {
	if d.GetProxy == nil {
		return nil, nil
	}
	proxy, err := d.GetProxy(ctx, r.Request)
	if err != nil || proxy == "" {
		return nil, err
	}
	u, err := url.Parse(proxy)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" { // TODO: socks
		return nil, errors.New("unsupported proxy scheme: " + u.Scheme)
	}
	return u, nil
}

// DialContextOverProxy creates a tunnel to remote through an http proxy
// with the CONNECT method. This part of logic may be reused when wrapping
// *[CoreDialer] into a new custom [Dialer]
func (d *CoreDialer) DialContextOverProxy(ctx context.Context, remote, proxy *url.URL) (net.Conn, error) {
	cfg := d.ProxyConfig
	if cfg == nil {
		cfg = &ProxyConfig{}
	}
	port := proxy.Port()
	if port == "" {
		port = schemes[proxy.Scheme]
	}
	conn, err := d.DialContext(ctx, d.ResolveConfig, proxy.Hostname(), port)
	if err != nil {
		return nil, err
	}

	if proxy.Scheme == "https" {
		tlsCfg := cfg.TLSConfig
		if tlsCfg == nil {
			tlsCfg = d.TLSConfig
		}
		if conn, err = d.handshake(ctx, conn, tlsCfg, proxy.Hostname()); err != nil {
			return nil, err
		}
	}

	addr, port := remote.Hostname(), remote.Port()
	if port == "" {
		port = schemes[remote.Scheme]
	}
	if cfg.ResolveLocally {
		dnsCfg := cfg.ResolveConfig.Merge(d.ResolveConfig)
		ips, err := d.lookup(ctx, dnsCfg, addr)
		if err != nil {
			conn.Close()
			return nil, err
		}
		addr = ips[rand.Intn(len(ips))].String()
	}

	// the tunnel is set up under the dial context
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}
	if err := connect(conn, remote, net.JoinHostPort(addr, port), proxy.User); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func connect(conn net.Conn, remote *url.URL, target string, user *url.Userinfo) error {
	connReq := &http.PreparedRequest{
		Request:    &http.Request{Method: "CONNECT", URL: target},
		U:          &url.URL{Opaque: target},
		HeaderHost: remote.Host,
		GetBody:    func() (io.ReadCloser, error) { return http.NoBody, nil },
		ProtoMajor: 1, ProtoMinor: 1,
	}
	if user != nil {
		pass, _ := user.Password()
		auth := user.Username() + ":" + pass
		connReq.Header = http.MakeHeader("Proxy-Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(auth)))
	}
	if err := h1Transport.Write(conn, connReq); err != nil {
		return err
	}
	br := bufio.NewReader(conn)
	resp := &http.Response{}
	if err := h1Transport.ReadResponse(br, connReq, resp, nil); err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		s, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return fmt.Errorf("proxy server returned error. status:%d, body:%s", resp.StatusCode, string(s))
	}
	if br.Buffered() > 0 {
		return errProxyReadAhead
	}
	return nil
}
