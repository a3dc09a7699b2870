package internal_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/frankli0324/go-http1/internal"
	"github.com/frankli0324/go-http1/internal/http"
)

type tCase struct {
	data []byte
	req  *http.Request
}

const defaultHeaders = "User-Agent: go-http1/1.0\r\nAccept-Encoding: identity\r\n"

var reqShouldBe = map[string]tCase{
	"BasicRequest": {
		req: &http.Request{
			Method: "GET",
			URL:    "http://www.example.com",
		},
		data: []byte("GET / HTTP/1.1\r\nHost: www.example.com\r\n" + defaultHeaders + "\r\n"),
	},
	"QueryNonStandard": {
		req: &http.Request{
			Method: "GET",
			URL:    "http://www.example.com/test?1=33=1",
		},
		data: []byte("GET /test?1=33=1 HTTP/1.1\r\nHost: www.example.com\r\n" + defaultHeaders + "\r\n"),
	},
	"HeaderNotCanonicalized": {
		req: &http.Request{
			Method: "GET",
			URL:    "http://www.example.com/",
			Header: http.MakeHeader("x-123-vv", "1"),
		},
		data: []byte("GET / HTTP/1.1\r\nHost: www.example.com\r\n" + defaultHeaders + "x-123-vv: 1\r\n\r\n"),
	},
	"URIFragmentNotIncluded": {
		req: &http.Request{
			Method: "GET",
			URL:    "http://www.example.com/?test=1#frag",
		},
		data: []byte("GET /?test=1 HTTP/1.1\r\nHost: www.example.com\r\n" + defaultHeaders + "\r\n"),
	},
	"DefaultMethod": {
		req: &http.Request{
			URL: "https://www.example.com/a",
		},
		data: []byte("GET /a HTTP/1.1\r\nHost: www.example.com\r\n" + defaultHeaders + "\r\n"),
	},
}

func TestRequestSerialize(t *testing.T) {
	for name, cas := range reqShouldBe {
		tCase := cas
		t.Run(name, func(t *testing.T) {
			req := SendSingleRequest(t, tCase.req)
			if err := iotest.TestReader(req, tCase.data); err != nil {
				t.Error(err)
			}
		})
	}
}

func connReset() error {
	return &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}
}

func ioTimeout() error {
	return &net.OpError{Op: "read", Net: "tcp", Err: os.ErrDeadlineExceeded}
}

const okResponse = "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return string(b)
}

func TestRedirectSeeOther(t *testing.T) {
	first := NewScriptConn("HTTP/1.1 303 See Other\r\nLocation: /next?x=1\r\nContent-Length: 3\r\n\r\nabc", nil)
	second := NewScriptConn(okResponse, nil)
	d := Serve(first, second)
	c := WithDialer(&internal.Client{FollowRedirect: true}, d)

	resp, err := c.CtxDo(context.Background(), &http.Request{
		Method: "POST",
		URL:    "http://example.com/form",
		Header: http.MakeHeader("Content-Type", "text/plain", "X-Keep", "1"),
		Body:   struct{ io.ReadSeeker }{strings.NewReader("payload")},
	})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, 1, resp.Redirects)
	require.Equal(t, "http://example.com/next?x=1", resp.URL.String())
	require.Equal(t, "ok", readBody(t, resp))

	require.True(t, strings.HasSuffix(first.Written(), "Content-Length: 7\r\nContent-Type: text/plain\r\nX-Keep: 1\r\n\r\npayload"))
	require.Equal(t, "GET /next?x=1 HTTP/1.1\r\nHost: example.com\r\n"+defaultHeaders+"X-Keep: 1\r\n\r\n", second.Written())
	require.Equal(t, []bool{true}, first.Releases(), "the redirect body is drained")
	require.Equal(t, []bool{true}, second.Releases())
}

func TestRedirectTemporaryNotFollowedForPost(t *testing.T) {
	first := NewScriptConn("HTTP/1.1 307 Temporary Redirect\r\nLocation: /elsewhere\r\nContent-Length: 4\r\n\r\nmove", nil)
	d := Serve(first)
	c := WithDialer(&internal.Client{FollowRedirect: true}, d)

	resp, err := c.CtxDo(context.Background(), &http.Request{
		Method: "POST", URL: "http://example.com/", Body: "data",
	})
	require.NoError(t, err)
	require.Equal(t, 307, resp.StatusCode)
	require.Equal(t, "307 Temporary Redirect", resp.Status)
	require.Equal(t, "/elsewhere", resp.Header.Get("Location"))
	require.Equal(t, "move", readBody(t, resp))
	require.Equal(t, 1, d.Dials())
}

func TestRedirectForced(t *testing.T) {
	first := NewScriptConn("HTTP/1.1 307 Temporary Redirect\r\nLocation: http://other.test/b\r\nContent-Length: 0\r\n\r\n", nil)
	second := NewScriptConn(okResponse, nil)
	c := WithDialer(&internal.Client{FollowRedirect: true, ForceFollowRedirect: true}, Serve(first, second))

	resp, err := c.CtxDo(context.Background(), &http.Request{
		Method: "PUT", URL: "http://example.com/a", Body: []byte("data"),
		Header: http.MakeHeader("Authorization", "Bearer x"),
	})
	require.NoError(t, err)
	require.Equal(t, "ok", readBody(t, resp))
	require.Equal(t, "PUT /b HTTP/1.1\r\nHost: other.test\r\n"+defaultHeaders+"Content-Length: 4\r\n\r\ndata", second.Written(),
		"credentials are not sent to another host")
}

func TestRedirectNotFollowedByDefault(t *testing.T) {
	first := NewScriptConn("HTTP/1.1 302 Found\r\nLocation: /b\r\nContent-Length: 0\r\n\r\n", nil)
	resp, err := WithDialer(&internal.Client{}, Serve(first)).CtxDo(context.Background(), &http.Request{URL: "http://example.com/a"})
	require.NoError(t, err)
	require.Equal(t, 302, resp.StatusCode)
}

func TestRedirectsDisabled(t *testing.T) {
	first := NewScriptConn("HTTP/1.1 302 Found\r\nLocation: /b\r\nContent-Length: 0\r\n\r\n", nil)
	d := Serve(first)
	c := WithDialer(&internal.Client{FollowRedirect: true, MaxRedirects: -1}, d)
	resp, err := c.CtxDo(context.Background(), &http.Request{URL: "http://example.com/a"})
	require.NoError(t, err)
	require.Equal(t, 302, resp.StatusCode)
	require.Equal(t, "/b", resp.Header.Get("Location"))
	require.Equal(t, 1, d.Dials())
}

func TestRedirectLimit(t *testing.T) {
	d := &TestDialer{Next: func(n int) (http.Conn, error) {
		return NewScriptConn("HTTP/1.1 302 Found\r\nLocation: /loop\r\nContent-Length: 0\r\n\r\n", nil), nil
	}}
	c := WithDialer(&internal.Client{FollowRedirect: true, MaxRedirects: 2}, d)
	_, err := c.CtxDo(context.Background(), &http.Request{URL: "http://example.com/loop"})
	require.ErrorIs(t, err, http.ErrRedirectLimitExceeded)
	var re *http.RequestError
	require.ErrorAs(t, err, &re)
	require.Equal(t, 3, re.Attempts)
	require.Equal(t, "http://example.com:80", re.Route)
	require.Equal(t, 3, d.Dials())
}

func TestRetryRecovers(t *testing.T) {
	d := &TestDialer{Next: func(n int) (http.Conn, error) {
		if n < 3 {
			return NewScriptConn("", connReset()), nil
		}
		return NewScriptConn(okResponse, nil), nil
	}}
	c := WithDialer(&internal.Client{MaxRetries: 5, RetryBackoff: time.Millisecond}, d)
	resp, err := c.CtxDo(context.Background(), &http.Request{URL: "http://example.com/"})
	require.NoError(t, err)
	require.Equal(t, 4, resp.Attempts)
	require.Equal(t, "ok", readBody(t, resp))
}

func TestRetryExhausted(t *testing.T) {
	var conns []*ScriptConn
	d := &TestDialer{Next: func(n int) (http.Conn, error) {
		c := NewScriptConn("", connReset())
		conns = append(conns, c)
		return c, nil
	}}
	c := WithDialer(&internal.Client{MaxRetries: 2, RetryBackoff: time.Millisecond}, d)
	_, err := c.CtxDo(context.Background(), &http.Request{URL: "http://example.com/"})
	require.ErrorIs(t, err, http.ErrRetryLimitExceeded)
	require.ErrorIs(t, err, syscall.ECONNRESET)
	require.NotErrorIs(t, err, http.ErrRequestTimeout)

	var re *http.RequestError
	require.ErrorAs(t, err, &re)
	require.Equal(t, 3, re.Attempts, "one attempt and exactly two retries")
	require.Equal(t, "GET", re.Method)
	require.Equal(t, 3, d.Dials())
	for _, c := range conns {
		require.Equal(t, []bool{false}, c.Releases(), "failed connections are never pooled")
	}
}

func TestRetryBackoffGrows(t *testing.T) {
	var at []time.Time
	d := &TestDialer{Next: func(n int) (http.Conn, error) {
		at = append(at, time.Now())
		return nil, connReset()
	}}
	c := WithDialer(&internal.Client{MaxRetries: 3, RetryBackoff: 10 * time.Millisecond}, d)
	_, err := c.CtxDo(context.Background(), &http.Request{URL: "http://example.com/"})
	require.ErrorIs(t, err, http.ErrRetryLimitExceeded)
	require.Len(t, at, 4)
	for i, want := range []time.Duration{10, 20, 40} {
		require.GreaterOrEqual(t, at[i+1].Sub(at[i]), want*time.Millisecond)
	}
}

func TestRetryTimeoutOnLastAttempt(t *testing.T) {
	d := &TestDialer{Next: func(n int) (http.Conn, error) {
		return NewScriptConn("", ioTimeout()), nil
	}}
	c := WithDialer(&internal.Client{MaxRetries: 1, RetryBackoff: time.Millisecond}, d)
	_, err := c.CtxDo(context.Background(), &http.Request{URL: "http://example.com/"})
	require.ErrorIs(t, err, http.ErrRequestTimeout)
	require.ErrorIs(t, err, http.ErrRetryLimitExceeded)
	require.Equal(t, 2, d.Dials())
}

func TestNoRetry(t *testing.T) {
	cases := map[string]func() (http.Conn, error){
		"DNS": func() (http.Conn, error) {
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "nowhere.invalid", IsNotFound: true}}
		},
		"Protocol": func() (http.Conn, error) {
			return NewScriptConn("SMTP ready\r\n\r\n", nil), nil
		},
		"Hook": nil,
	}
	for name, next := range cases {
		next := next
		t.Run(name, func(t *testing.T) {
			c := &internal.Client{MaxRetries: 5, RetryBackoff: time.Millisecond}
			if next == nil {
				next = func() (http.Conn, error) { return NewScriptConn(okResponse, nil), nil }
				c.UseHooks(internal.Hook{OnConnect: func(ctx context.Context, conn http.Conn) error {
					return connReset()
				}})
			}
			d := &TestDialer{Next: func(int) (http.Conn, error) { return next() }}
			_, err := WithDialer(c, d).CtxDo(context.Background(), &http.Request{URL: "http://example.com/"})
			require.Error(t, err)
			require.NotErrorIs(t, err, http.ErrRetryLimitExceeded)
			require.Equal(t, 1, d.Dials())
		})
	}
}

func TestProtocolErrorSurfaces(t *testing.T) {
	c := WithDialer(&internal.Client{}, Serve(NewScriptConn("HTTP/1.1 abc Bad\r\n\r\n", nil)))
	_, err := c.CtxDo(context.Background(), &http.Request{URL: "http://example.com/"})
	require.ErrorIs(t, err, &http.ProtocolError{Kind: http.InvalidStatus})
	var re *http.RequestError
	require.ErrorAs(t, err, &re)
	require.Equal(t, 1, re.Attempts)
}

func TestStaleConnectionRetried(t *testing.T) {
	stale := NewScriptConn("", nil)
	stale.reused = true
	fresh := NewScriptConn(okResponse, nil)
	c := WithDialer(&internal.Client{RetryBackoff: time.Millisecond}, Serve(stale, fresh))
	resp, err := c.CtxDo(context.Background(), &http.Request{URL: "http://example.com/"})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Attempts)
	require.Equal(t, "ok", readBody(t, resp))
	require.Equal(t, []bool{false}, stale.Releases())
}

func TestEmptyReplyOnFreshConnection(t *testing.T) {
	d := Serve(NewScriptConn("", nil))
	_, err := WithDialer(&internal.Client{}, d).CtxDo(context.Background(), &http.Request{URL: "http://example.com/"})
	require.ErrorIs(t, err, &http.ProtocolError{Kind: http.NoMoreData})
	require.Equal(t, 1, d.Dials())
}

func TestNonReplayableBodyNotRetried(t *testing.T) {
	d := &TestDialer{Next: func(n int) (http.Conn, error) {
		return NewScriptConn("", connReset()), nil
	}}
	c := WithDialer(&internal.Client{RetryBackoff: time.Millisecond}, d)
	_, err := c.CtxDo(context.Background(), &http.Request{
		Method: "POST", URL: "http://example.com/", Chunked: true,
		Body: io.MultiReader(strings.NewReader("stream")),
	})
	require.ErrorIs(t, err, http.ErrBodyNotReplayable)
	require.ErrorIs(t, err, syscall.ECONNRESET)
	require.Equal(t, 1, d.Dials())
}

func TestDialFailureKeepsUnreadBody(t *testing.T) {
	d := &TestDialer{}
	conn := NewScriptConn(okResponse, nil)
	d.Next = func(n int) (http.Conn, error) {
		if n == 0 {
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
		}
		return conn, nil
	}
	c := WithDialer(&internal.Client{RetryBackoff: time.Millisecond}, d)
	resp, err := c.CtxDo(context.Background(), &http.Request{
		Method: "POST", URL: "http://example.com/", Chunked: true,
		Body: io.MultiReader(strings.NewReader("stream")),
	})
	require.NoError(t, err)
	require.Equal(t, "ok", readBody(t, resp))
	require.True(t, strings.HasSuffix(conn.Written(), "\r\n\r\n6\r\nstream\r\n0\r\n\r\n"))
}

func TestRequestErrorBeforeIO(t *testing.T) {
	d := &TestDialer{Next: func(int) (http.Conn, error) { panic("must not dial") }}
	c := WithDialer(&internal.Client{}, d)
	for name, req := range map[string]*http.Request{
		"UnknownLength":  {Method: "POST", URL: "http://example.com/", Body: io.MultiReader()},
		"ChunkedHTTP10":  {Method: "POST", URL: "http://example.com/", Body: "x", Chunked: true, Proto: "HTTP/1.0"},
		"BadScheme":      {URL: "ftp://example.com/"},
		"BadHeaderValue": {URL: "http://example.com/", Header: http.MakeHeader("X-A", "a\r\nb")},
		"BadMethod":      {Method: "GET /", URL: "http://example.com/"},
		"LengthConflict": {Method: "POST", URL: "http://example.com/", Body: "abc", Header: http.MakeHeader("Content-Length", "4")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.CtxDo(context.Background(), req)
			var re *http.RequestError
			require.ErrorAs(t, err, &re)
			require.Zero(t, re.Attempts)
		})
	}
	require.Zero(t, d.Dials())
}

func TestHooksAndMiddlewares(t *testing.T) {
	var events []string
	record := func(name string) internal.Hook {
		return internal.Hook{
			OnConnect: func(ctx context.Context, conn http.Conn) error {
				events = append(events, name+":connect")
				return nil
			},
			OnRequest: func(ctx context.Context, req *internal.PreparedRequest) error {
				events = append(events, name+":request")
				req.Header.Set("X-Signed", name)
				return nil
			},
			OnResponse: func(ctx context.Context, resp *http.Response) error {
				events = append(events, name+":response:"+resp.Status)
				return nil
			},
		}
	}
	mw := func(name string) internal.Middleware {
		return func(next internal.Handler) internal.Handler {
			return func(ctx context.Context, req *internal.PreparedRequest) (*http.Response, error) {
				events = append(events, name)
				return next(ctx, req)
			}
		}
	}
	conn := NewScriptConn(okResponse, nil)
	c := WithDialer(&internal.Client{}, Serve(conn))
	c.UseHooks(record("a"), record("b"))
	c.Use(mw("first"), mw("last"))

	resp, err := c.CtxDo(context.Background(), &http.Request{URL: "http://example.com/"})
	require.NoError(t, err)
	readBody(t, resp)
	require.Equal(t, []string{
		"last", "first",
		"a:request", "b:request",
		"a:connect", "b:connect",
		"a:response:200 OK", "b:response:200 OK",
	}, events)
	require.Contains(t, conn.Written(), "\r\nX-Signed: b\r\n")
}

type stall struct{ c *ScriptConn }

func (s stall) Read(p []byte) (int, error) {
	<-s.c.interrupted
	return 0, ioTimeout()
}

func stallingConn() *ScriptConn {
	c := NewScriptConn("", nil)
	c.src = bufio.NewReader(stall{c})
	return c
}

func TestContextInterruptsRead(t *testing.T) {
	conn := stallingConn()
	d := Serve(conn)
	c := WithDialer(&internal.Client{RetryBackoff: time.Millisecond}, d)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.CtxDo(ctx, &http.Request{URL: "http://example.com/"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, http.ErrRequestTimeout)
	require.Equal(t, 1, d.Dials(), "an expired context is not retried")
	require.Equal(t, []bool{false}, conn.Releases())
}

func TestContextCanceledDuringBackoff(t *testing.T) {
	d := &TestDialer{Next: func(n int) (http.Conn, error) { return nil, connReset() }}
	c := WithDialer(&internal.Client{RetryBackoff: time.Hour}, d)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	_, err := c.CtxDo(ctx, &http.Request{URL: "http://example.com/"})
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, errors.Is(err, syscall.ECONNRESET))
	require.Equal(t, 1, d.Dials())
}

func TestCanceledContextKeepsConnectionOut(t *testing.T) {
	conn := NewScriptConn("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok", nil)
	c := WithDialer(&internal.Client{}, Serve(conn))
	ctx, cancel := context.WithCancel(context.Background())
	resp, err := c.CtxDo(ctx, &http.Request{URL: "http://example.com/"})
	require.NoError(t, err)
	cancel()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
	require.Equal(t, []bool{false}, conn.Releases(), "an interrupted connection is not pooled")
}
