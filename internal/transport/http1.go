package transport

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/valyala/bytebufferpool"

	"github.com/frankli0324/go-http1/internal/http"
	"github.com/frankli0324/go-http1/internal/transport/chunked"
)

const (
	DefaultUserAgent      = "go-http1/1.0"
	DefaultAcceptEncoding = "identity"

	// request bodies are streamed in blocks of this size
	bodyBlockSize = 16 << 10
)

type HTTP1 struct {
	Parser
	UserAgent string
}

func (t *HTTP1) Write(w io.Writer, r *http.PreparedRequest) error {
	body, err := r.GetBody() // can write body
	if err != nil {
		return err
	}
	defer body.Close() // request body is ALWAYS closed

	bw := bufio.NewWriterSize(w, 4096)
	if err := t.writeHeader(bw, r); err != nil {
		return err
	}
	if err := t.writeBody(bw, body, r); err != nil {
		return err
	}
	return bw.Flush()
}

// writeHeader writes the status and header part of an http 1.1 request
// e.g.:
//
//	GET / HTTP/1.1\r\n
//	Host: www.google.com\r\n
//	User-Agent: go-http1/1.0\r\n
//	Accept-Encoding: identity\r\n
//	X-Xx-Yy: cccccc\r\n
//	\r\n
func (t *HTTP1) writeHeader(w io.Writer, r *http.PreparedRequest) error {
	header := bytebufferpool.Get()
	defer bytebufferpool.Put(header)

	header.WriteString(r.Method)
	header.WriteByte(' ')
	header.WriteString(requestURI(r))
	header.WriteString(" HTTP/")
	header.WriteString(strconv.Itoa(r.ProtoMajor))
	header.WriteByte('.')
	header.WriteString(strconv.Itoa(r.ProtoMinor))
	header.WriteString("\r\n")

	writeField := func(k, v string) {
		header.WriteString(k)
		header.WriteString(": ")
		header.WriteString(v)
		header.WriteString("\r\n")
	}
	writeField("Host", r.HeaderHost)
	if !r.Header.Has("User-Agent") {
		ua := t.UserAgent
		if ua == "" {
			ua = DefaultUserAgent
		}
		writeField("User-Agent", ua)
	}
	if !r.Header.Has("Accept-Encoding") {
		writeField("Accept-Encoding", DefaultAcceptEncoding)
	}
	switch {
	case r.Chunked:
		writeField("Transfer-Encoding", "chunked")
	case r.ContentLength > 0 || (r.ContentLength == 0 && r.ExpectsBody()):
		writeField("Content-Length", strconv.FormatInt(r.ContentLength, 10))
	}
	r.Header.Each(func(k, v string) error {
		writeField(k, v)
		return nil
	})
	header.WriteString("\r\n")

	_, err := w.Write(header.B)
	return err
}

func requestURI(r *http.PreparedRequest) string {
	if r.Method == "CONNECT" && r.U.Opaque != "" {
		return r.U.Opaque
	}
	return r.U.RequestURI()
}

func (t *HTTP1) writeBody(w io.Writer, body io.Reader, r *http.PreparedRequest) error {
	buf := make([]byte, bodyBlockSize)
	if r.Chunked {
		cw := chunked.NewChunkedWriter(w)
		if _, err := io.CopyBuffer(cw, body, buf); err != nil {
			return err
		}
		return cw.Close()
	}
	if r.ContentLength <= 0 {
		return nil
	}
	n, err := io.CopyBuffer(w, io.LimitReader(body, r.ContentLength), buf)
	if err != nil {
		return err
	}
	if n != r.ContentLength {
		return &http.RequestError{
			Method: r.Method, URL: r.URL,
			Err: fmt.Errorf("body is %d bytes, shorter than content-length %d", n, r.ContentLength),
		}
	}
	return nil
}

// ReadResponse parses the response to r from br into resp. done receives
// the connection disposition once the body is finished with.
func (t *HTTP1) ReadResponse(br *bufio.Reader, r *http.PreparedRequest, resp *http.Response, done func(reuse bool)) error {
	m, err := t.Parser.ReadResponse(br, r.Method, done)
	if err != nil {
		return err
	}
	resp.Proto, resp.ProtoMajor, resp.ProtoMinor = m.Proto, m.ProtoMajor, m.ProtoMinor
	resp.StatusCode, resp.Reason = m.StatusCode, m.Reason
	resp.Status = strconv.Itoa(m.StatusCode)
	if m.Reason != "" {
		resp.Status += " " + m.Reason
	}
	resp.Header = m.Header
	resp.ContentLength = m.ContentLength
	if m.Decompressed {
		resp.ContentLength = -1
	}
	resp.Chunked = m.Chunked
	resp.Close = m.ShouldClose
	resp.Body = m.Body
	resp.Request = r
	resp.URL = r.U
	return nil
}
