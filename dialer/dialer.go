package dialer

import (
	"github.com/frankli0324/go-http1/internal/dialer"
)

// Dialers are responsible for handing out connections that http requests
// could be written to and responses could be read from. for example, a
// pooled TCP connection, maybe tunneled through a proxy and wrapped in TLS.
//
// Unlike [net/http.Transport], A Dialer MUST NOT hold the state of active
// connections: a connection handed out belongs to the request until its
// response body is done with, then it goes back through [Conn.Release].
// Like [net/http.Transport], it SHOULD hold the connection related configs
// like [ProxyConfig] or *[net/tls.Config].
type Dialer = dialer.Dialer

// CoreDialer is the default implementation of the [Dialer] interface. It would
// be used by a zero value http.Client.
type CoreDialer = dialer.CoreDialer

type ProxyConfig = dialer.ProxyConfig

// we need a dedicated resolver for two scenarios:
//
//  1. Resolve remote address locally in proxied requests
//  2. to customize the DNS server used for resolving hostname
//
// the standard library didn't provide a intuitive way of
// setting DNS server addresses since it only follows the
// system configuration (e.g. /etc/resolv.conf), leaving us only
// one option of using [net.Resolver.Dial] hook with a Go Resolver.
//
// this part of code tries to take advantage of that
// only option as far as possible to provide a relativly
// intuitive configuration API.
type ResolveConfig = dialer.ResolveConfig

// DefaultPool is the connection pool of every CoreDialer without one.
var DefaultPool = dialer.DefaultPool
