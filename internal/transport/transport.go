package transport

import (
	"bufio"
	"io"

	"github.com/frankli0324/go-http1/internal/http"
)

type Transport interface {
	Write(w io.Writer, req *http.PreparedRequest) error
	ReadResponse(br *bufio.Reader, req *http.PreparedRequest, resp *http.Response, done func(reuse bool)) error
}

var _ Transport = (*HTTP1)(nil)
