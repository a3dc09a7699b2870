package internal

import (
	"context"
	"net"
	"net/http/httptrace"
	"reflect"

	"github.com/frankli0324/go-http1/internal/http"
)

// Hook observes or adjusts a call at fixed points of its lifecycle. Hooks
// run in registration order and each callback may be nil. An error
// returned by a callback aborts the call and is never retried.
//
// Auth and signing filters plug in here: OnRequest may rewrite the headers
// of the request about to be written.
type Hook struct {
	// OnConnect runs once a connection, new or reused, was handed out.
	OnConnect func(ctx context.Context, conn http.Conn) error
	// OnRequest runs before every attempt, redirects and retries included.
	OnRequest func(ctx context.Context, req *PreparedRequest) error
	// OnResponse runs for every response head, before redirects are
	// followed.
	OnResponse func(ctx context.Context, resp *http.Response) error
}

var stdNetTraceKey, stdHttpTraceKey interface{}

type captureContext struct {
	context.Context
	capture func(reflect.Type)
}

func (c captureContext) Value(key interface{}) interface{} {
	c.capture(reflect.TypeOf(key))
	return nil
}

func init() {
	var stdNetTraceType, stdHttpTraceType reflect.Type

	capture := captureContext{context.Background(), nil}
	capture.capture = func(t reflect.Type) { stdNetTraceType = t }
	(&net.Dialer{}).DialContext(capture, "invalid", "")
	capture.capture = func(t reflect.Type) { stdHttpTraceType = t }
	httptrace.ContextClientTrace(capture)

	stdNetTraceKey = reflect.New(stdNetTraceType).Elem().Interface()
	stdHttpTraceKey = reflect.New(stdHttpTraceType).Elem().Interface()
}

// shadowStandardClientTrace hides traces meant for net/http from the
// dialers, connections here are reported through Hook instead.
func shadowStandardClientTrace(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, stdHttpTraceKey, nil)
	ctx = context.WithValue(ctx, stdNetTraceKey, nil)
	return ctx
}
