package http

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrAlreadyConsumed is returned when reading a body after it was closed.
	ErrAlreadyConsumed = errors.New("http: body already consumed or closed")
	// ErrBodyNotReplayable is returned when a request has to be sent again
	// (retry or redirect) but its body could only be read once.
	ErrBodyNotReplayable = errors.New("http: request body can not be replayed")

	ErrRedirectLimitExceeded = errors.New("http: redirect limit exceeded")
	ErrRetryLimitExceeded    = errors.New("http: retry limit exceeded")
	ErrRequestTimeout        = errors.New("http: request timeout")
)

// ProtocolKind tells which part of a message violated the wire grammar.
type ProtocolKind int

const (
	InvalidStartLine ProtocolKind = iota
	InvalidVersion
	InvalidStatus
	InvalidHeaderName
	InvalidHeader
	HeaderLimitExceeded
	LineTooLong
	InvalidContentLength
	InvalidChunkSize
	NoMoreData
)

var protocolKinds = [...]string{
	InvalidStartLine:     "invalid start line",
	InvalidVersion:       "invalid version",
	InvalidStatus:        "invalid status",
	InvalidHeaderName:    "invalid header name",
	InvalidHeader:        "invalid header line",
	HeaderLimitExceeded:  "header limit exceeded",
	LineTooLong:          "line too long",
	InvalidContentLength: "invalid content length",
	InvalidChunkSize:     "invalid chunk size",
	NoMoreData:           "no more data",
}

func (k ProtocolKind) String() string {
	if int(k) < len(protocolKinds) {
		return protocolKinds[k]
	}
	return "ProtocolKind(" + strconv.Itoa(int(k)) + ")"
}

// ProtocolError reports malformed framing received from the peer. A
// connection that produced one is never reused and the request is never
// retried.
type ProtocolError struct {
	Kind   ProtocolKind
	Detail string
	Err    error
}

func NewProtocolError(kind ProtocolKind, detail string) *ProtocolError {
	return &ProtocolError{Kind: kind, Detail: detail}
}

func (e *ProtocolError) Error() string {
	msg := "http: " + e.Kind.String()
	if e.Detail != "" {
		msg += " " + strconv.Quote(e.Detail)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, &ProtocolError{Kind: k}) match on the kind.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Kind == e.Kind && t.Detail == "" && t.Err == nil
}

// RequestError is the error surfaced by the client. It carries enough
// context to tell which request failed where and after how many attempts.
type RequestError struct {
	Method   string
	URL      string
	Route    string
	Attempts int
	// Limit is set to ErrRetryLimitExceeded or ErrRedirectLimitExceeded
	// when a policy gave up.
	Limit error
	Err   error
}

func (e *RequestError) Error() string {
	msg := e.Method + " " + e.URL
	if e.Route != "" {
		msg += " (" + e.Route + ")"
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	if e.Limit != nil {
		msg += ": " + e.Limit.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RequestError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Limit != nil {
		errs = append(errs, e.Limit)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// invalidRequest builds the RequestError returned before any I/O happened.
func invalidRequest(r *Request, format string, args ...interface{}) *RequestError {
	return &RequestError{Method: r.Method, URL: r.URL, Err: fmt.Errorf(format, args...)}
}
