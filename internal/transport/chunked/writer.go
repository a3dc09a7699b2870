package chunked

import (
	"io"
	"strconv"

	"github.com/frankli0324/go-http1/internal/http"
)

// NewChunkedWriter is taken from golang src/net/http/internal/chunked.go
func NewChunkedWriter(w io.Writer) *Writer {
	return &Writer{w}
}

// Writer frames every Write as one chunk. Close ends the body.
type Writer struct {
	Wire io.Writer
}

func (cw *Writer) Write(data []byte) (n int, err error) {

	// Don't send 0-length data. It looks like EOF for chunked encoding.
	if len(data) == 0 {
		return 0, nil
	}

	if _, err = io.WriteString(cw.Wire, strconv.FormatInt(int64(len(data)), 16)+"\r\n"); err != nil {
		return 0, err
	}
	if n, err = cw.Wire.Write(data); err != nil {
		return
	}
	if n != len(data) {
		err = io.ErrShortWrite
		return
	}
	if _, err = io.WriteString(cw.Wire, "\r\n"); err != nil {
		return
	}
	if f, ok := cw.Wire.(interface{ Flush() error }); ok {
		err = f.Flush()
	}
	return
}

// Close writes the terminating zero-size chunk without trailers.
func (cw *Writer) Close() error {
	return cw.CloseWithTrailer(nil)
}

func (cw *Writer) CloseWithTrailer(trailer http.Header) error {
	if _, err := io.WriteString(cw.Wire, "0\r\n"); err != nil {
		return err
	}
	if err := trailer.Each(func(k, v string) error {
		_, err := io.WriteString(cw.Wire, k+": "+v+"\r\n")
		return err
	}); err != nil {
		return err
	}
	_, err := io.WriteString(cw.Wire, "\r\n")
	return err
}
