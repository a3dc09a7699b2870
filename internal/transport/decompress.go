package transport

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"

	"github.com/frankli0324/go-http1/internal/http"
)

// inflateBlock is how much decompressed output is produced per refill
const inflateBlock = 32 << 10

// inflater wraps a framed body and hands out its decompressed bytes. Output
// is produced a block at a time, whatever doesn't fit the caller's buffer
// is kept for the next Read.
type inflater struct {
	src  io.Reader
	open func(io.Reader) (io.Reader, error)
	zr   io.Reader

	block []byte
	buf   []byte // pending decompressed bytes
	eof   bool
	err   error
}

func newGzipReader(src io.Reader) io.Reader {
	return &inflater{src: src, open: func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	}}
}

// newDeflateReader accepts both zlib wrapped streams, which is what the
// "deflate" coding means, and the raw DEFLATE streams some servers send.
func newDeflateReader(src io.Reader) io.Reader {
	return &inflater{src: src, open: func(r io.Reader) (io.Reader, error) {
		br := bufio.NewReader(r)
		hdr, err := br.Peek(2)
		if err == io.EOF && len(hdr) > 0 {
			// a single byte is neither an empty body nor a stream
			return nil, &http.ProtocolError{Kind: http.NoMoreData, Detail: "truncated deflate stream", Err: io.ErrUnexpectedEOF}
		}
		if err != nil {
			return nil, err
		}
		if hdr[0]&0x0f == 8 && (uint16(hdr[0])<<8|uint16(hdr[1]))%31 == 0 {
			return zlib.NewReader(br)
		}
		return flate.NewReader(br), nil
	}}
}

func (z *inflater) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(z.buf) == 0 {
		if err := z.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, z.buf)
	z.buf = z.buf[n:]
	return n, nil
}

func (z *inflater) fill() error {
	for len(z.buf) == 0 {
		if z.err != nil {
			return z.err
		}
		if z.eof {
			return io.EOF
		}
		if z.zr == nil {
			zr, err := z.open(z.src)
			if err != nil {
				return z.end(err)
			}
			z.zr, z.block = zr, make([]byte, inflateBlock)
		}
		n, err := z.zr.Read(z.block)
		z.buf = z.block[:n]
		if err != nil {
			if err := z.end(err); n == 0 {
				return err
			}
		}
	}
	return nil
}

// end records the terminal state of the stream. On a clean end the rest of
// the framed body, such as the last chunk and trailers, is consumed so the
// connection could be released.
func (z *inflater) end(err error) error {
	if err == io.EOF {
		if _, derr := io.Copy(io.Discard, z.src); derr != nil {
			err = derr
		}
	}
	if err == io.EOF || err == nil {
		z.eof = true
		return io.EOF
	}
	z.err = err
	return err
}
