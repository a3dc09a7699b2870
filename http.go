package http

import (
	"github.com/frankli0324/go-http1/internal/http"
)

type Header = http.Header
type Field = http.Field
type Request = http.Request
type PreparedRequest = http.PreparedRequest
type Response = http.Response

// Conn is the connection a request is written to, as seen by hooks.
type Conn = http.Conn

// SizedBody and ChunkFunc are request bodies besides the plain ones
// (string, []byte, io.Reader and friends).
type SizedBody = http.SizedBody
type ChunkFunc = http.ChunkFunc

var (
	MakeHeader = http.MakeHeader
	NoBody     = http.NoBody
)

type ProtocolError = http.ProtocolError
type ProtocolKind = http.ProtocolKind
type RequestError = http.RequestError

const (
	InvalidStartLine     = http.InvalidStartLine
	InvalidVersion       = http.InvalidVersion
	InvalidStatus        = http.InvalidStatus
	InvalidHeaderName    = http.InvalidHeaderName
	InvalidHeader        = http.InvalidHeader
	HeaderLimitExceeded  = http.HeaderLimitExceeded
	LineTooLong          = http.LineTooLong
	InvalidContentLength = http.InvalidContentLength
	InvalidChunkSize     = http.InvalidChunkSize
	NoMoreData           = http.NoMoreData
)

var (
	ErrAlreadyConsumed       = http.ErrAlreadyConsumed
	ErrBodyNotReplayable     = http.ErrBodyNotReplayable
	ErrRedirectLimitExceeded = http.ErrRedirectLimitExceeded
	ErrRetryLimitExceeded    = http.ErrRetryLimitExceeded
	ErrRequestTimeout        = http.ErrRequestTimeout
)
