package http

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// NoBody is an empty body, its Close is a no-op.
var NoBody = http.NoBody

// SizedBody is a body producer that knows its length in advance, such as
// a multipart encoder.
type SizedBody interface {
	io.Reader
	Size() int64
}

// ChunkFunc produces a body piece by piece. It returns io.EOF after the
// last piece. The length is unknown, so requests carrying one must be
// chunked, and it can be consumed only once.
type ChunkFunc func() ([]byte, error)

var schemes = map[string]string{
	"http": "80", "https": "443",
}

type PreparedRequest struct {
	*Request

	U       *url.URL
	GetBody func() (io.ReadCloser, error)
	Header  Header
	// HeaderHost is the value of the Host header written on the wire
	HeaderHost string

	// ContentLength is -1 when unknown, only valid with Chunked
	ContentLength int64
	Chunked       bool

	ProtoMajor, ProtoMinor int

	replayable bool
}

func (r *Request) Prepare() (*PreparedRequest, error) {
	method := r.Method
	if method == "" {
		method = "GET"
	}
	if !httpguts.ValidHeaderFieldName(method) { // method is a token too
		return nil, invalidRequest(r, "invalid method %q", method)
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, invalidRequest(r, "%w", err)
	}
	if _, ok := schemes[u.Scheme]; !ok {
		return nil, invalidRequest(r, "unsupported scheme %q", u.Scheme)
	}

	major, minor := 1, 1
	switch r.Proto {
	case "", "HTTP/1.1":
	case "HTTP/1.0":
		minor = 0
	default:
		return nil, invalidRequest(r, "unsupported protocol version %q", r.Proto)
	}

	headers := make(Header, 0, len(r.Header))
	host := u.Host
	cl := int64(-1)
	chunked := r.Chunked
	// user defined headers has higher priority
	for _, f := range r.Header {
		if !httpguts.ValidHeaderFieldName(f.Name) {
			return nil, invalidRequest(r, "invalid header name %q", f.Name)
		}
		if !httpguts.ValidHeaderFieldValue(f.Value) {
			return nil, invalidRequest(r, "invalid header value for %q", f.Name)
		}
		switch strings.ToLower(f.Name) {
		case "host":
			host = f.Value
		case "content-length":
			v, err := strconv.ParseInt(strings.TrimSpace(f.Value), 10, 64)
			if err != nil || v < 0 {
				return nil, invalidRequest(r, "invalid content-length %q", f.Value)
			}
			cl = v
		case "transfer-encoding":
			if !strings.EqualFold(strings.TrimSpace(f.Value), "chunked") {
				return nil, invalidRequest(r, "unsupported transfer-encoding %q", f.Value)
			}
			chunked = true
		default:
			headers = append(headers, f)
		}
	}
	if host, err = httpguts.PunycodeHostPort(host); err != nil {
		return nil, invalidRequest(r, "%w", err)
	}
	if host == "" || !httpguts.ValidHostHeader(host) {
		return nil, invalidRequest(r, "%w", url.InvalidHostError(host))
	}
	if chunked && minor == 0 {
		return nil, invalidRequest(r, "chunked transfer coding requires HTTP/1.1")
	}

	pr := &PreparedRequest{
		Request: &Request{
			Method: method, URL: r.URL, Body: r.Body, Header: r.Header,
			Proto: fmt.Sprintf("HTTP/%d.%d", major, minor), Chunked: chunked,
		},
		U: u, Header: headers, HeaderHost: host,
		ProtoMajor: major, ProtoMinor: minor,
		Chunked: chunked,
	}
	if err := pr.updateBody(); err != nil {
		// note that updateBody potentially updates content-length
		return nil, invalidRequest(r, "%w", err)
	}
	if pr.ContentLength == -1 && !chunked {
		if cl == -1 {
			return nil, invalidRequest(r, "body length unknown, use chunked transfer coding")
		}
		// trust the declared length of an otherwise unsized body
		pr.ContentLength = cl
	}
	if cl != -1 && pr.ContentLength != cl {
		return nil, invalidRequest(r, "conflicting value between body size and content-length request header")
	}
	return pr, nil
}

// Addr returns the host and port the request is sent to.
func (r *PreparedRequest) Addr() (host, port string) {
	host, port = r.U.Hostname(), r.U.Port()
	if port == "" {
		port = schemes[r.U.Scheme]
	}
	return
}

func (r *PreparedRequest) IsTLS() bool { return r.U.Scheme == "https" }

// Replayable reports whether the body could be sent again after it was
// read, for retries and redirects.
func (r *PreparedRequest) Replayable() bool { return r.replayable }

// ExpectsBody tells whether a zero Content-Length header must still be
// written for a request carrying no body.
func (r *PreparedRequest) ExpectsBody() bool {
	switch r.Method {
	case "POST", "PUT", "PATCH":
		return true
	}
	return false
}

// Redirect derives the request sent to u after a redirect. When keepBody is
// false the body and the headers describing it are dropped. Credentials
// are not forwarded to another host.
func (r *PreparedRequest) Redirect(u *url.URL, method string, keepBody bool) *PreparedRequest {
	next := *r
	req := *r.Request
	req.Method, req.URL = method, u.String()
	next.Request = &req
	next.U = u
	next.Header = r.Header.Clone()
	if u.Host != r.U.Host {
		if h, err := httpguts.PunycodeHostPort(u.Host); err == nil {
			next.HeaderHost = h
		} else {
			next.HeaderHost = u.Host
		}
		if !sameDomain(r.U.Hostname(), u.Hostname()) {
			next.Header.Del("Authorization")
			next.Header.Del("Www-Authenticate")
			next.Header.Del("Cookie")
			next.Header.Del("Cookie2")
		}
	}
	if !keepBody {
		req.Body = nil
		next.Chunked, req.Chunked = false, false
		next.ContentLength = 0
		next.GetBody = func() (io.ReadCloser, error) { return NoBody, nil }
		next.replayable = true
		next.Header.Del("Content-Type")
		next.Header.Del("Content-Encoding")
	}
	return &next
}

func sameDomain(a, b string) bool {
	if a == b {
		return true
	}
	if net.ParseIP(b) != nil {
		return false
	}
	return strings.HasSuffix(b, "."+a)
}

// should only be called once at [Prepare]
func (r *PreparedRequest) updateBody() (err error) {
	r.replayable = true
	if r.Request.Body == nil {
		r.ContentLength = 0
		r.GetBody = func() (io.ReadCloser, error) {
			return NoBody, nil
		}
		return nil
	}
	switch b := r.Request.Body.(type) {
	case string:
		r.ContentLength = int64(len(b))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(b)), nil
		}
	case []byte:
		r.ContentLength = int64(len(b))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(b)), nil
		}
	case [][]byte:
		r.ContentLength = 0
		for _, p := range b {
			r.ContentLength += int64(len(p))
		}
		r.GetBody = func() (io.ReadCloser, error) {
			i := 0
			return io.NopCloser(&chunkSeq{next: func() ([]byte, error) {
				if i == len(b) {
					return nil, io.EOF
				}
				i++
				return b[i-1], nil
			}}), nil
		}
	case ChunkFunc:
		r.ContentLength = -1
		r.once(&chunkSeq{next: b})
	case func() ([]byte, error):
		r.ContentLength = -1
		r.once(&chunkSeq{next: b})
	case *bytes.Buffer: // below is taken from http.NewRequest
		r.ContentLength = int64(b.Len())
		buf := b.Bytes()
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		}
	case *bytes.Reader:
		r.ContentLength = int64(b.Len())
		snapshot := *b
		r.GetBody = func() (io.ReadCloser, error) {
			r := snapshot
			return io.NopCloser(&r), nil
		}
	case *strings.Reader:
		r.ContentLength = int64(b.Len())
		snapshot := *b
		r.GetBody = func() (io.ReadCloser, error) {
			r := snapshot
			return io.NopCloser(&r), nil
		}
	case io.ReadSeeker:
		end, err := b.Seek(0, io.SeekEnd)
		if err != nil {
			return err
		}
		if _, err := b.Seek(0, io.SeekStart); err != nil {
			return err
		}
		r.ContentLength = end
		r.GetBody = func() (io.ReadCloser, error) {
			if _, err := b.Seek(0, io.SeekStart); err != nil {
				return nil, err
			}
			// hide io.WriterTo so that the body is copied block by block
			return io.NopCloser(struct{ io.Reader }{b}), nil
		}
	case SizedBody:
		r.ContentLength = b.Size()
		r.once(b)
	case io.Reader:
		r.ContentLength = -1
		r.once(b)
	default:
		return fmt.Errorf("unsupported body type: %T", r.Request.Body)
	}
	return nil
}

func (r *PreparedRequest) once(b io.Reader) {
	r.replayable = false
	ob := &onceBody{r: b}
	r.GetBody = func() (io.ReadCloser, error) {
		if ob.touched {
			return nil, ErrBodyNotReplayable
		}
		return ob, nil
	}
}

// onceBody guards a body that can only be read once. A body that was
// handed out but never read could still be sent again.
type onceBody struct {
	r       io.Reader
	touched bool
}

func (b *onceBody) Read(p []byte) (int, error) {
	b.touched = true
	return b.r.Read(p)
}

func (b *onceBody) WriteTo(w io.Writer) (int64, error) {
	b.touched = true
	if wt, ok := b.r.(io.WriterTo); ok {
		return wt.WriteTo(w)
	}
	return io.Copy(w, struct{ io.Reader }{b.r})
}

func (b *onceBody) Close() error {
	if c, ok := b.r.(io.Closer); ok && b.touched {
		return c.Close()
	}
	return nil
}

// chunkSeq turns a sequence of pieces into a reader. When copied with
// io.Copy each piece is written with exactly one Write call, which maps
// every piece onto one chunk under chunked transfer coding.
type chunkSeq struct {
	next func() ([]byte, error)
	cur  []byte
}

func (c *chunkSeq) Read(p []byte) (int, error) {
	for len(c.cur) == 0 {
		b, err := c.next()
		if err != nil {
			return 0, err
		}
		c.cur = b
	}
	n := copy(p, c.cur)
	c.cur = c.cur[n:]
	return n, nil
}

func (c *chunkSeq) WriteTo(w io.Writer) (n int64, err error) {
	for {
		if len(c.cur) > 0 {
			m, err := w.Write(c.cur)
			n += int64(m)
			if err != nil {
				return n, err
			}
			c.cur = nil
		}
		b, err := c.next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		c.cur = b
	}
}
