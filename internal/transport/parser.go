package transport

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/frankli0324/go-http1/internal/http"
	"github.com/frankli0324/go-http1/internal/transport/chunked"
)

const (
	DefaultMaxHeaders   = 100
	DefaultMaxLineBytes = 64 << 10

	// interim responses tolerated before the final one
	maxInterim = 8
)

// Message is the parsed head of a request or a response, together with a
// reader over its body.
type Message struct {
	Line       string // raw start line
	Proto      string
	ProtoMajor int
	ProtoMinor int

	// response only
	StatusCode int
	Reason     string

	// request only
	Method string
	Path   string

	Header http.Header

	// ContentLength is -1 unless the body is framed by Content-Length
	ContentLength   int64
	Chunked         bool
	ContentEncoding string
	// Decompressed is set when Body inflates a gzip or deflate coding
	Decompressed bool
	// ShouldClose tells that the connection can't carry another message
	ShouldClose bool

	Body *Body
}

// Parser reads HTTP/1.x messages off a buffered byte source. The zero
// value uses the default limits and doesn't decompress.
type Parser struct {
	MaxHeaders   int
	MaxLineBytes int
	Decompress   bool
}

// ReadResponse parses the response to a request made with method. Interim
// 1xx responses are consumed and skipped. done is called exactly once with
// whether the connection could be reused, as soon as the body is
// exhausted, closed or broken.
func (p *Parser) ReadResponse(br *bufio.Reader, method string, done func(reuse bool)) (*Message, error) {
	for i := 0; ; i++ {
		m, err := p.readHead(br, false)
		if err != nil {
			return nil, err
		}
		if m.StatusCode >= 100 && m.StatusCode < 200 && m.StatusCode != 101 {
			if i == maxInterim {
				return nil, http.NewProtocolError(http.InvalidStatus, "too many interim responses")
			}
			continue
		}
		if err := p.attachBody(br, m, method, done); err != nil {
			return nil, err
		}
		return m, nil
	}
}

// ReadRequest parses a request, the counterpart used by servers and tests.
func (p *Parser) ReadRequest(br *bufio.Reader, done func(reuse bool)) (*Message, error) {
	m, err := p.readHead(br, true)
	if err != nil {
		return nil, err
	}
	if err := p.attachBody(br, m, "", done); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *Parser) maxLine() int {
	if p.MaxLineBytes > 0 {
		return p.MaxLineBytes
	}
	return DefaultMaxLineBytes
}

func (p *Parser) maxHeaders() int {
	if p.MaxHeaders > 0 {
		return p.MaxHeaders
	}
	return DefaultMaxHeaders
}

// readLine returns a line without its line ending. A bare io.EOF is only
// returned when the source ended before the first byte of the line.
func (p *Parser) readLine(br *bufio.Reader) (string, error) {
	var line []byte
	for {
		frag, err := br.ReadSlice('\n')
		if len(line)+len(frag) > p.maxLine() {
			return "", http.NewProtocolError(http.LineTooLong, "")
		}
		if err == bufio.ErrBufferFull {
			line = append(line, frag...)
			continue
		}
		if err != nil {
			if err != io.EOF {
				// socket errors are left for the caller to classify
				return "", err
			}
			if len(line)+len(frag) == 0 {
				return "", io.EOF
			}
			return "", &http.ProtocolError{Kind: http.NoMoreData, Err: io.ErrUnexpectedEOF}
		}
		if line == nil {
			line = frag
		} else {
			line = append(line, frag...)
		}
		break
	}
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return string(line), nil
}

func (p *Parser) readHead(br *bufio.Reader, request bool) (*Message, error) {
	line, err := p.readLine(br)
	if err != nil {
		return nil, err
	}
	m := &Message{Line: line, ContentLength: -1}
	if request {
		err = parseRequestLine(m, line)
	} else {
		err = parseStatusLine(m, line)
	}
	if err != nil {
		return nil, err
	}
	if m.Header, err = p.readHeader(br); err != nil {
		return nil, err
	}
	m.ShouldClose = shouldClose(m.ProtoMajor, m.ProtoMinor, m.Header)
	m.ContentEncoding = strings.ToLower(strings.TrimSpace(m.Header.Get("Content-Encoding")))
	return m, nil
}

func parseStatusLine(m *Message, line string) error {
	proto, status, ok := strings.Cut(line, " ")
	if !ok {
		return http.NewProtocolError(http.InvalidStartLine, line)
	}
	if err := parseVersion(m, proto); err != nil {
		return err
	}
	status = strings.TrimLeft(status, " ")
	code, reason, _ := strings.Cut(status, " ")
	if len(code) != 3 || !isDigits(code) {
		return http.NewProtocolError(http.InvalidStatus, status)
	}
	m.StatusCode, _ = strconv.Atoi(code)
	if m.StatusCode < 100 {
		return http.NewProtocolError(http.InvalidStatus, status)
	}
	m.Reason = reason
	return nil
}

func parseRequestLine(m *Message, line string) error {
	parts := strings.Split(line, " ")
	if len(parts) != 3 || parts[1] == "" || !httpguts.ValidHeaderFieldName(parts[0]) {
		return http.NewProtocolError(http.InvalidStartLine, line)
	}
	m.Method, m.Path = parts[0], parts[1]
	return parseVersion(m, parts[2])
}

// parseVersion accepts HTTP/<major>.<minor>, HTTP/1.x only
func parseVersion(m *Message, proto string) error {
	rest, ok := strings.CutPrefix(proto, "HTTP/")
	if !ok {
		return http.NewProtocolError(http.InvalidVersion, proto)
	}
	major, minor, ok := strings.Cut(rest, ".")
	if !ok || !isDigits(major) || !isDigits(minor) || len(major) > 3 || len(minor) > 3 {
		return http.NewProtocolError(http.InvalidVersion, proto)
	}
	m.Proto = proto
	m.ProtoMajor, _ = strconv.Atoi(major)
	m.ProtoMinor, _ = strconv.Atoi(minor)
	if m.ProtoMajor != 1 {
		return http.NewProtocolError(http.InvalidVersion, proto)
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// readHeader reads header lines up to the blank line. Obsolete line folding
// is undone by joining the continuation onto the previous value with one
// space.
func (p *Parser) readHeader(br *bufio.Reader) (http.Header, error) {
	var h http.Header
	for {
		line, err := p.readLine(br)
		if err == io.EOF {
			err = &http.ProtocolError{Kind: http.NoMoreData, Err: io.ErrUnexpectedEOF}
		}
		if err != nil {
			return nil, err
		}
		if line == "" {
			return h, nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(h) == 0 {
				return nil, http.NewProtocolError(http.InvalidHeader, line)
			}
			// folded lines are joined as is, obs-fold is not turned into SP
			h[len(h)-1].Value += strings.Trim(line, " \t")
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, http.NewProtocolError(http.InvalidHeader, line)
		}
		if !httpguts.ValidHeaderFieldName(name) {
			return nil, http.NewProtocolError(http.InvalidHeaderName, name)
		}
		if len(h) == p.maxHeaders() {
			return nil, http.NewProtocolError(http.HeaderLimitExceeded, strconv.Itoa(len(h)))
		}
		h.Add(name, strings.Trim(value, " \t"))
	}
}

// shouldClose: an explicit "close" always wins, an explicit "keep-alive"
// keeps HTTP/1.0 connections open, otherwise HTTP/1.1 and later persist
func shouldClose(major, minor int, h http.Header) bool {
	conn := h.Values("Connection")
	if httpguts.HeaderValuesContainsToken(conn, "close") {
		return true
	}
	if major == 1 && minor == 0 {
		return !httpguts.HeaderValuesContainsToken(conn, "keep-alive")
	}
	return false
}

func isChunked(h http.Header) bool {
	te := h.Values("Transfer-Encoding")
	if len(te) == 0 {
		return false
	}
	codings := strings.Split(te[len(te)-1], ",")
	return strings.EqualFold(strings.TrimSpace(codings[len(codings)-1]), "chunked")
}

func contentLength(h http.Header) (n int64, present bool, err error) {
	contentLens := h.Values("Content-Length")
	if len(contentLens) == 0 {
		return -1, false, nil
	}
	// Hardening against HTTP request smuggling, taken from standard library
	// Per RFC 7230 Section 3.3.2
	first := strings.TrimSpace(contentLens[0])
	for _, ct := range contentLens[1:] {
		if first != strings.TrimSpace(ct) {
			return -1, true, http.NewProtocolError(http.InvalidContentLength, strings.Join(contentLens, ", "))
		}
	}
	v, perr := strconv.ParseUint(first, 10, 63)
	if perr != nil {
		return -1, true, nil
	}
	return int64(v), true, nil
}

func bodyless(method string, status int) bool {
	if method == "CONNECT" && status >= 200 && status < 300 {
		// the tunnel starts right after the header
		return true
	}
	return method == "HEAD" || (status >= 100 && status < 200) || status == 204 || status == 304
}

// attachBody selects the framing of the body: chunked, then a numeric
// Content-Length, then read-until-close.
func (p *Parser) attachBody(br *bufio.Reader, m *Message, method string, done func(reuse bool)) error {
	request := m.Method != ""
	chunkedBody := isChunked(m.Header)
	n, present := int64(-1), false
	if !chunkedBody {
		// Content-Length is ignored altogether under chunked coding
		var err error
		if n, present, err = contentLength(m.Header); err != nil {
			return err
		}
	}
	if m.StatusCode == 101 {
		// the connection now speaks another protocol
		m.ShouldClose = true
	}

	var framing io.Reader
	switch {
	case !request && bodyless(method, m.StatusCode):
		m.Body = emptyBody(!m.ShouldClose, done)
		return nil
	case chunkedBody:
		m.Chunked = true
		framing = chunked.NewChunkedReader(br)
	case n >= 0:
		m.ContentLength = n
		if n == 0 {
			m.Body = emptyBody(!m.ShouldClose, done)
			return nil
		}
		framing = &lengthReader{r: br, n: n}
	case request:
		if present {
			return http.NewProtocolError(http.InvalidContentLength, m.Header.Get("Content-Length"))
		}
		m.Body = emptyBody(!m.ShouldClose, done)
		return nil
	default:
		m.ShouldClose = true
		framing = &eofReader{r: br}
	}

	if p.Decompress {
		switch m.ContentEncoding {
		case "gzip", "x-gzip":
			framing, m.Decompressed = newGzipReader(framing), true
		case "deflate":
			framing, m.Decompressed = newDeflateReader(framing), true
		}
	}
	m.Body = newBody(framing, !m.ShouldClose, done)
	return nil
}
