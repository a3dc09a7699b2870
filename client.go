package http

import (
	"github.com/frankli0324/go-http1/internal"
)

// Client sends requests over HTTP/1.x. The zero value is ready to use:
// it doesn't follow redirects, retries transient failures 3 times and
// shares connections through a process wide pool.
type Client = internal.Client
type Middleware = internal.Middleware
type Handler = internal.Handler
type Hook = internal.Hook

const (
	DefaultMaxRedirects = internal.DefaultMaxRedirects
	DefaultMaxRetries   = internal.DefaultMaxRetries
	DefaultRetryBackoff = internal.DefaultRetryBackoff
	MaxRetryBackoff     = internal.MaxRetryBackoff
)
