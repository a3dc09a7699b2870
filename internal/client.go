package internal

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/frankli0324/go-http1/internal/dialer"
	"github.com/frankli0324/go-http1/internal/http"
	"github.com/frankli0324/go-http1/internal/transport"
)

type PreparedRequest = http.PreparedRequest

// Handler performs a single attempt: one request written, one response
// head read.
type Handler = func(ctx context.Context, req *PreparedRequest) (*http.Response, error)
type Middleware func(next Handler) Handler

const (
	DefaultMaxRedirects = 5
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 300 * time.Millisecond
	// MaxRetryBackoff caps the doubled wait, unless RetryBackoff itself is
	// longer.
	MaxRetryBackoff = 30 * time.Second
)

var defaultDialer = &dialer.CoreDialer{}

// Client executes requests. A Client holds no per-call state and may be
// shared by many goroutines once configured.
type Client struct {
	FollowRedirect bool
	// ForceFollowRedirect follows 301, 302, 307 and 308 for methods other
	// than GET and HEAD too, resending the body.
	ForceFollowRedirect bool
	// MaxRedirects and MaxRetries use their defaults when zero. A negative
	// MaxRedirects returns redirect responses as they are, a negative
	// MaxRetries fails on the first error.
	MaxRedirects int
	MaxRetries   int
	// RetryBackoff is the wait before the first retry, it doubles for each
	// retry after up to MaxRetryBackoff.
	RetryBackoff time.Duration

	Decompress bool
	MaxHeaders int
	UserAgent  string

	// Limiter, when set, is waited on before every attempt.
	Limiter *rate.Limiter
	Logger  *zerolog.Logger

	middlewares []Middleware
	hooks       []Hook
	dialer      http.Dialer
}

// Use appends mw to the end of the chain. The last "Use"d mw executes first
func (c *Client) Use(mws ...Middleware) {
	c.middlewares = append(c.middlewares, mws...)
}

// UseHooks appends hooks, they run after the ones already registered.
func (c *Client) UseHooks(hooks ...Hook) {
	c.hooks = append(c.hooks, hooks...)
}

func (c *Client) getDialer() http.Dialer {
	if c.dialer != nil {
		return c.dialer
	}
	return defaultDialer
}

func (c *Client) logger() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

func (c *Client) transport() transport.Transport {
	return &transport.HTTP1{
		Parser:    transport.Parser{MaxHeaders: c.MaxHeaders, Decompress: c.Decompress},
		UserAgent: c.UserAgent,
	}
}

func (c *Client) maxRedirects() int {
	if c.MaxRedirects == 0 {
		return DefaultMaxRedirects
	}
	return max(c.MaxRedirects, 0)
}

func (c *Client) maxRetries() int {
	if c.MaxRetries == 0 {
		return DefaultMaxRetries
	}
	return max(c.MaxRetries, 0)
}

func (c *Client) backoff(retry int) time.Duration {
	d := c.RetryBackoff
	if d == 0 {
		d = DefaultRetryBackoff
	}
	ceil := max(d, MaxRetryBackoff)
	for ; retry > 0 && d < ceil; retry-- {
		d <<= 1
	}
	return min(d, ceil)
}

// CtxDo sends req and returns the final response after redirects and
// retries. The response body keeps its connection until it is read to the
// end or closed, and ctx stays attached to it until then.
func (c *Client) CtxDo(ctx context.Context, req *http.Request) (*http.Response, error) {
	pr, err := req.Prepare()
	if err != nil {
		return nil, err
	}
	return c.newSession(pr).run(shadowStandardClientTrace(ctx))
}

// Do is CtxDo with context.Background.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.CtxDo(context.Background(), req)
}
