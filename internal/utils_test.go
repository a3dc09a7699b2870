package internal_test

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"

	"github.com/frankli0324/go-http1/internal"
	"github.com/frankli0324/go-http1/internal/http"
)

// ScriptConn replays a canned response and records what was written.
type ScriptConn struct {
	src     *bufio.Reader
	written bytes.Buffer
	reused  bool

	mu          sync.Mutex
	releases    []bool
	closed      bool
	interrupted chan struct{}
}

// NewScriptConn serves response, then fails reads with err, or io.EOF
// when err is nil.
func NewScriptConn(response string, err error) *ScriptConn {
	var r io.Reader = strings.NewReader(response)
	if err != nil {
		r = io.MultiReader(r, iotest.ErrReader(err))
	}
	return &ScriptConn{src: bufio.NewReader(r), interrupted: make(chan struct{})}
}

func (c *ScriptConn) Read(p []byte) (int, error)  { return c.src.Read(p) }
func (c *ScriptConn) Write(p []byte) (int, error) { return c.written.Write(p) }
func (c *ScriptConn) Source() *bufio.Reader       { return c.src }
func (c *ScriptConn) Reused() bool                { return c.reused }
func (c *ScriptConn) Raw() net.Conn               { return nil }

func (c *ScriptConn) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.interrupted:
	default:
		close(c.interrupted)
	}
}

func (c *ScriptConn) Release(reuse bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases = append(c.releases, reuse)
}

func (c *ScriptConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *ScriptConn) Releases() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.releases...)
}

// Written is the request that reached the wire.
func (c *ScriptConn) Written() string { return c.written.String() }

// TestDialer hands out the connections returned by Next, one per dial.
type TestDialer struct {
	Next  func(n int) (http.Conn, error)
	dials int
	mu    sync.Mutex
}

// Dial implements http.Dialer.
func (t *TestDialer) Dial(ctx context.Context, r *http.PreparedRequest) (http.Conn, error) {
	t.mu.Lock()
	n := t.dials
	t.dials++
	t.mu.Unlock()
	return t.Next(n)
}

// Unwrap implements http.Dialer.
func (t *TestDialer) Unwrap() http.Dialer {
	return nil
}

func (t *TestDialer) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

// Serve returns a dialer handing out conns in order.
func Serve(conns ...*ScriptConn) *TestDialer {
	return &TestDialer{Next: func(n int) (http.Conn, error) {
		return conns[n], nil
	}}
}

func WithDialer(c *internal.Client, d http.Dialer) *internal.Client {
	c.UseDialer(func(http.Dialer) http.Dialer { return d })
	return c
}

func SendSingleRequest(t *testing.T, req *http.Request) io.Reader {
	conn := NewScriptConn("HTTP/1.1 200 OK\r\nContent-Length: 0\r\nConnection: close\r\n\r\n", nil)
	c := WithDialer(&internal.Client{}, Serve(conn))
	resp, err := c.CtxDo(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, []bool{false}, conn.Releases())
	return strings.NewReader(conn.Written())
}
