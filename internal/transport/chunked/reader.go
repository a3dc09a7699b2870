package chunked

import (
	"bufio"
	"bytes"
	"io"

	"github.com/frankli0324/go-http1/internal/http"
)

// maxLineBytes bounds chunk-size lines and trailer lines
const maxLineBytes = 4096

func NewChunkedReader(r io.Reader) *Reader {
	var br *bufio.Reader
	if v, ok := r.(*bufio.Reader); ok {
		br = v
	} else {
		br = bufio.NewReader(r)
	}
	return &Reader{br: br}
}

// Reader decodes a chunked body. It reads exactly up to the end of the
// trailer section and not a byte further, so the underlying reader could
// carry the next message.
type Reader struct {
	br        *bufio.Reader
	remaining int64 // bytes left in the current chunk
	inChunk   bool
	eof       bool
	err       error
}

func protoErr(kind http.ProtocolKind, detail string, err error) error {
	return &http.ProtocolError{Kind: kind, Detail: detail, Err: err}
}

func (c *Reader) readLine() ([]byte, error) {
	line, err := c.br.ReadSlice('\n')
	if err == bufio.ErrBufferFull || len(line) > maxLineBytes {
		return nil, protoErr(http.LineTooLong, "", nil)
	}
	if err == io.EOF {
		return nil, protoErr(http.NoMoreData, "", io.ErrUnexpectedEOF)
	}
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

func (c *Reader) readChunkHeader() (n uint64, err error) {
	line, err := c.readLine()
	if err != nil {
		return 0, err
	}
	size := line
	if i := bytes.IndexByte(size, ';'); i >= 0 {
		size = size[:i] // chunk extensions are ignored
	}
	size = bytes.Trim(size, " \t")
	if len(size) == 0 {
		return 0, protoErr(http.InvalidChunkSize, string(line), nil)
	}
	if len(size) >= 16 {
		return 0, protoErr(http.InvalidChunkSize, "http chunk length too large", nil)
	}
	for _, b := range size {
		switch {
		case '0' <= b && b <= '9':
			b = b - '0'
		case 'a' <= b && b <= 'f':
			b = b - 'a' + 10
		case 'A' <= b && b <= 'F':
			b = b - 'A' + 10
		default:
			return 0, protoErr(http.InvalidChunkSize, string(line), nil)
		}
		n <<= 4
		n |= uint64(b)
	}
	return
}

// skipTrailer discards the trailer fields up to the terminating blank line
func (c *Reader) skipTrailer() error {
	for {
		line, err := c.readLine()
		if err != nil {
			return err
		}
		if len(line) == 0 {
			return nil
		}
	}
}

func (c *Reader) Read(p []byte) (n int, err error) {
	if c.eof {
		return 0, io.EOF
	}
	if c.err != nil {
		return 0, c.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	defer func() {
		if err != nil && err != io.EOF {
			c.err = err
		}
	}()
	if !c.inChunk {
		l, err := c.readChunkHeader()
		if err != nil {
			return 0, err
		}
		if l == 0 {
			if err := c.skipTrailer(); err != nil {
				return 0, err
			}
			c.eof = true
			return 0, io.EOF
		}
		c.inChunk, c.remaining = true, int64(l)
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err = c.br.Read(p)
	c.remaining -= int64(n)
	if err == io.EOF {
		if c.remaining > 0 {
			return n, protoErr(http.NoMoreData, "", io.ErrUnexpectedEOF)
		}
		err = nil
	}
	if err != nil {
		return n, err
	}
	if c.remaining == 0 {
		dr, _ := c.br.ReadByte()
		dn, err := c.br.ReadByte()
		if err == io.EOF {
			return n, protoErr(http.NoMoreData, "", io.ErrUnexpectedEOF)
		}
		if err != nil {
			return n, err
		}
		if dr != '\r' || dn != '\n' {
			return n, protoErr(http.InvalidChunkSize, "malformed chunked encoding", nil)
		}
		c.inChunk = false
	}
	return n, nil
}
