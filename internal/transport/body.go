package transport

import (
	"bytes"
	"io"

	"github.com/frankli0324/go-http1/internal/http"
)

// Body streams one message body. It owns the connection disposition: the
// first of EOF, Close or a read error reports to done whether the
// connection could carry another message, and nothing is reported after.
//
// A Body is meant for a single consumer.
type Body struct {
	r       io.Reader
	reuse   bool
	done    func(reuse bool)
	pending []byte // read ahead by ReadLine
	scratch [512]byte

	eof    bool
	closed bool
	err    error
}

func newBody(r io.Reader, reuse bool, done func(bool)) *Body {
	return &Body{r: r, reuse: reuse, done: done}
}

// emptyBody is already exhausted, the connection is released right away.
func emptyBody(reuse bool, done func(bool)) *Body {
	b := &Body{eof: true, done: done}
	b.finish(reuse)
	return b
}

func (b *Body) finish(reuse bool) {
	if d := b.done; d != nil {
		b.done = nil
		d(reuse)
	}
}

func (b *Body) Read(p []byte) (n int, err error) {
	if b.closed {
		return 0, http.ErrAlreadyConsumed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if len(b.pending) > 0 {
		n = copy(p, b.pending)
		b.pending = b.pending[n:]
		return n, nil
	}
	if b.eof {
		return 0, io.EOF
	}
	if b.err != nil {
		return 0, b.err
	}
	n, err = b.r.Read(p)
	switch {
	case err == io.EOF:
		b.eof = true
		b.finish(b.reuse)
		if n > 0 {
			err = nil
		}
	case err != nil:
		b.err = err
		b.finish(false)
	}
	return n, err
}

// ReadN returns at most n bytes, fewer only at the end of the body. A
// negative n reads everything left, zero returns without touching the
// source.
func (b *Body) ReadN(n int) ([]byte, error) {
	if b.closed {
		return nil, http.ErrAlreadyConsumed
	}
	if n < 0 {
		return io.ReadAll(b)
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	m, err := io.ReadFull(b, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	return buf[:m], err
}

// ReadLine returns the next line including its '\n', or what is left of
// the body at its end. After the end it returns io.EOF.
func (b *Body) ReadLine() ([]byte, error) {
	var line []byte
	for {
		if i := bytes.IndexByte(b.pending, '\n'); i >= 0 {
			line = append(line, b.pending[:i+1]...)
			b.pending = b.pending[i+1:]
			return line, nil
		}
		line = append(line, b.pending...)
		b.pending = nil

		n, err := b.Read(b.scratch[:])
		if n > 0 {
			b.pending = b.scratch[:n]
			continue
		}
		if err == io.EOF && len(line) > 0 {
			return line, nil
		}
		return line, err
	}
}

// Close stops reading. A body closed before its end leaves unread bytes
// on the connection, so the connection is closed instead of reused.
func (b *Body) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.pending = nil
	b.finish(b.eof && b.err == nil && b.reuse)
	return nil
}

// lengthReader never reads past n bytes of r.
type lengthReader struct {
	r io.Reader
	n int64
}

func (l *lengthReader) Read(p []byte) (int, error) {
	if l.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)
	if l.n > 0 && (err == io.EOF || (n == 0 && err == nil)) {
		return n, &http.ProtocolError{Kind: http.NoMoreData, Err: io.ErrUnexpectedEOF}
	}
	if l.n == 0 && err == nil {
		err = io.EOF
	}
	return n, err
}

// eofReader reads until the peer closes the connection. The first empty
// read ends the body for good.
type eofReader struct {
	r   io.Reader
	eof bool
}

func (e *eofReader) Read(p []byte) (int, error) {
	if e.eof {
		return 0, io.EOF
	}
	n, err := e.r.Read(p)
	if n == 0 && err == nil {
		err = io.EOF
	}
	if err == io.EOF {
		e.eof = true
	}
	return n, err
}
