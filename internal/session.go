package internal

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/frankli0324/go-http1/internal/http"
	"github.com/frankli0324/go-http1/internal/transport"
	"github.com/frankli0324/go-http1/utils/nettools"
)

type state int

const (
	stateIdle state = iota
	stateConnecting
	stateSending
	stateAwaitingResponse
	stateParsing
	stateRedirecting
	stateRetrying
	stateDone
)

var stateNames = [...]string{"idle", "connecting", "sending", "awaiting response", "parsing", "redirecting", "retrying", "done"}

func (s state) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// errIdleClosed is returned when a reused connection was closed by the
// server before it sent a single byte, which happens when the server
// times out keep-alive connections.
var errIdleClosed = errors.New("server closed idle connection")

// session is the state of one CtxDo call.
type session struct {
	c       *Client
	log     zerolog.Logger
	handler Handler

	req   *PreparedRequest
	state state

	attempts  int
	retries   int
	redirects int
	wrote     bool // the body of req was handed to the wire at least once
}

func (c *Client) newSession(pr *PreparedRequest) *session {
	s := &session{
		c:   c,
		req: pr,
		log: c.logger().With().Str("method", pr.Method).Str("url", pr.URL).Logger(),
	}
	s.handler = s.send
	for _, mw := range c.middlewares {
		s.handler = mw(s.handler)
	}
	return s
}

func (s *session) run(ctx context.Context) (*http.Response, error) {
	for {
		resp, err := s.roundTrip(ctx)
		if err != nil {
			return nil, err
		}
		next, err := s.redirect(resp)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		if next == nil {
			s.state = stateDone
			resp.Redirects = s.redirects
			return resp, nil
		}
		if err := transport.Drain(resp.Body); err != nil {
			s.log.Debug().Err(err).Msg("discarding redirect body")
		}
		s.req, s.wrote = next, false
	}
}

// roundTrip performs attempts until one yields a response head or the
// retry policy gives up.
func (s *session) roundTrip(ctx context.Context) (*http.Response, error) {
	for {
		if l := s.c.Limiter; l != nil {
			if err := l.Wait(ctx); err != nil {
				return nil, s.fail(err, nil)
			}
		}
		s.attempts++
		resp, err := s.handler(ctx, s.req)
		if err == nil {
			resp.Attempts = s.attempts
			return resp, nil
		}
		if cerr := ctx.Err(); cerr != nil {
			if !errors.Is(err, cerr) {
				err = fmt.Errorf("%w: %w", cerr, err)
			}
			return nil, s.fail(err, nil)
		}
		if !retryable(err) {
			return nil, s.fail(err, nil)
		}
		if s.retries >= s.c.maxRetries() {
			return nil, s.fail(err, http.ErrRetryLimitExceeded)
		}
		if s.wrote && !s.req.Replayable() {
			return nil, s.fail(fmt.Errorf("%w: %w", http.ErrBodyNotReplayable, err), nil)
		}

		s.state = stateRetrying
		wait := s.c.backoff(s.retries)
		s.retries++
		s.log.Debug().Err(err).Int("retry", s.retries).Dur("backoff", wait).Msg("retrying request")
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, s.fail(fmt.Errorf("%w: %w", ctx.Err(), err), nil)
		}
	}
}

// send is the innermost Handler, a single exchange on one connection.
func (s *session) send(ctx context.Context, req *PreparedRequest) (*http.Response, error) {
	s.state = stateIdle
	for _, h := range s.c.hooks {
		if h.OnRequest != nil {
			if err := h.OnRequest(ctx, req); err != nil {
				return nil, &hookError{"OnRequest", err}
			}
		}
	}

	s.state = stateConnecting
	conn, err := s.c.getDialer().Dial(ctx, req)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, conn.Interrupt)
	var once sync.Once
	release := func(reuse bool) {
		once.Do(func() {
			if !stop() {
				// ctx fired, Interrupt may still be racing with the release
				reuse = false
			}
			conn.Release(reuse)
		})
	}
	reused := conn.Reused()
	if reused {
		s.log.Debug().Msg("reusing connection")
	}
	for _, h := range s.c.hooks {
		if h.OnConnect != nil {
			if err := h.OnConnect(ctx, conn); err != nil {
				release(false)
				return nil, &hookError{"OnConnect", err}
			}
		}
	}

	tr := s.c.transport()
	s.state = stateSending
	s.wrote = true
	if err := tr.Write(conn, req); err != nil {
		release(false)
		return nil, err
	}

	s.state = stateAwaitingResponse
	resp := &http.Response{}
	if err := tr.ReadResponse(conn.Source(), req, resp, release); err != nil {
		release(false)
		if err == io.EOF {
			if reused {
				return nil, fmt.Errorf("%w: %w", errIdleClosed, io.ErrUnexpectedEOF)
			}
			return nil, &http.ProtocolError{Kind: http.NoMoreData, Detail: "connection closed before response", Err: io.ErrUnexpectedEOF}
		}
		return nil, err
	}

	s.state = stateParsing
	if tc := tlsConn(conn); tc != nil {
		cs := tc.ConnectionState()
		resp.TLS = &cs
	}
	for _, h := range s.c.hooks {
		if h.OnResponse != nil {
			if err := h.OnResponse(ctx, resp); err != nil {
				resp.Body.Close()
				return nil, &hookError{"OnResponse", err}
			}
		}
	}
	return resp, nil
}

// redirect returns the request to send next, or nil when resp is final.
func (s *session) redirect(resp *http.Response) (*PreparedRequest, error) {
	if !s.c.FollowRedirect || s.c.maxRedirects() == 0 {
		return nil, nil
	}
	method, keepBody := s.req.Method, true
	switch resp.StatusCode {
	case 303:
		method, keepBody = "GET", false
	case 301, 302, 307, 308:
		if method != "GET" && method != "HEAD" && !s.c.ForceFollowRedirect {
			return nil, nil
		}
	default:
		return nil, nil
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, nil
	}
	u, err := s.req.U.Parse(loc)
	if err != nil {
		return nil, s.fail(fmt.Errorf("invalid redirect location %q: %w", loc, err), nil)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, s.fail(fmt.Errorf("unsupported redirect location %q", loc), nil)
	}
	if s.redirects >= s.c.maxRedirects() {
		return nil, s.fail(fmt.Errorf("%d %s to %s", resp.StatusCode, resp.Reason, u), http.ErrRedirectLimitExceeded)
	}
	if keepBody && s.req.ContentLength != 0 && !s.req.Replayable() {
		return nil, s.fail(fmt.Errorf("%w: redirected to %s", http.ErrBodyNotReplayable, u), nil)
	}

	s.state = stateRedirecting
	s.redirects++
	s.log.Debug().Int("status", resp.StatusCode).Stringer("location", u).Int("redirect", s.redirects).Msg("following redirect")
	return s.req.Redirect(u, method, keepBody), nil
}

func (s *session) route() string {
	host, port := s.req.Addr()
	return s.req.U.Scheme + "://" + net.JoinHostPort(host, port)
}

// fail builds the error surfaced to the caller. limit names the policy
// that gave up, if any.
func (s *session) fail(err error, limit error) error {
	s.state = stateDone
	if nettools.IsTimeout(err) && !errors.Is(err, http.ErrRequestTimeout) {
		err = fmt.Errorf("%w: %w", http.ErrRequestTimeout, err)
	}
	var re *http.RequestError
	if limit == nil && errors.As(err, &re) {
		e := *re
		e.Route, e.Attempts = s.route(), s.attempts
		return &e
	}
	s.log.Debug().Err(err).Int("attempts", s.attempts).Msg("request failed")
	return &http.RequestError{
		Method: s.req.Method, URL: s.req.URL, Route: s.route(),
		Attempts: s.attempts, Limit: limit, Err: err,
	}
}

// retryable tells transient failures from those an identical retry can't
// fix.
func retryable(err error) bool {
	var pe *http.ProtocolError
	var re *http.RequestError
	var he *hookError
	switch {
	case errors.As(err, &pe), errors.As(err, &re), errors.As(err, &he):
		return false
	case errors.Is(err, http.ErrBodyNotReplayable), nettools.IsDNS(err):
		return false
	}
	return errors.Is(err, errIdleClosed) || nettools.IsTransient(err) || nettools.IsTimeout(err)
}

func tlsConn(c http.Conn) *tls.Conn {
	if tc, ok := c.Raw().(*tls.Conn); ok {
		return tc
	}
	return nil
}

type hookError struct {
	hook string
	err  error
}

func (e *hookError) Error() string { return e.hook + ": " + e.err.Error() }
func (e *hookError) Unwrap() error { return e.err }
