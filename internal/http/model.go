package http

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/url"
)

// Conn is one established stream a single request is written to and its
// response is read from.
type Conn interface {
	io.ReadWriter
	// Source is the buffered read side of the stream. Bytes buffered past
	// the end of one message stay in it for the next message.
	Source() *bufio.Reader
	// Interrupt makes blocked and future reads and writes fail. It may be
	// called from any goroutine.
	Interrupt()
	// Release hands the connection back. When reuse is false, or the
	// pool can't take it, the connection is closed.
	Release(reuse bool)
	// Close closes the connection for good.
	Close() error
	// Reused reports whether the connection served a request before.
	Reused() bool
	Raw() net.Conn
}

type Dialer interface {
	Dial(ctx context.Context, r *PreparedRequest) (Conn, error)
	Unwrap() Dialer
}

type Request struct {
	Method string
	URL    string
	Body   interface{}
	Header Header

	// Proto is "HTTP/1.1" (the default) or "HTTP/1.0".
	Proto string
	// Chunked sends the body with chunked transfer coding. Required for
	// bodies whose length is unknown.
	Chunked bool
}

type Response struct {
	Proto      string
	ProtoMajor int
	ProtoMinor int
	Status     string // e.g. "200 OK"
	StatusCode int
	Reason     string
	Header     Header

	// ContentLength is -1 when the body is chunked or delimited by close.
	ContentLength int64
	Chunked       bool
	// Close is set when the connection will not be reused after the body
	// is consumed.
	Close bool
	Body  io.ReadCloser

	// TLS is the state of the connection the response came over, nil for
	// plain connections.
	TLS *tls.ConnectionState

	// URL is where the final response came from, after redirects.
	URL       *url.URL
	Request   *PreparedRequest
	Attempts  int
	Redirects int
}
