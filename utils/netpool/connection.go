package netpool

import (
	"bufio"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type State int32

const (
	Active State = iota
	Idle
	Closed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Idle:
		return "idle"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Conn is a pooled connection. It is also the byte source responses are
// parsed from: the buffered reader lives as long as the connection, so
// bytes read ahead of one response are kept for the next one.
type Conn struct {
	conn  net.Conn
	br    *bufio.Reader
	pool  *Pool
	state atomic.Int32

	expiry time.Time // guarded by pool lock
	uses   int       // guarded by pool lock

	mu          sync.Mutex // serializes deadline updates
	interrupted bool
	closeOnce   sync.Once
	closeErr    error
}

func newConn(p *Pool, c net.Conn) *Conn {
	conn := &Conn{conn: c, pool: p, uses: 1}
	conn.br = bufio.NewReaderSize(conn, 4096)
	return conn
}

func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) Route() Route { return c.pool.route }

func (c *Conn) Raw() net.Conn { return c.conn }

func (c *Conn) Source() *bufio.Reader { return c.br }

func (c *Conn) Reused() bool { return c.uses > 1 }

func (c *Conn) deadline(set func(time.Time) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interrupted {
		return os.ErrDeadlineExceeded
	}
	if d := c.pool.cfg.IOTimeout; d > 0 {
		return set(time.Now().Add(d))
	}
	return nil
}

// Interrupt aborts any blocked and future Read or Write. It is safe to call
// from another goroutine, for example when a context gets canceled.
func (c *Conn) Interrupt() {
	c.mu.Lock()
	c.interrupted = true
	c.conn.SetDeadline(time.Unix(1, 0))
	c.mu.Unlock()
}

func (c *Conn) Write(p []byte) (n int, err error) {
	if err = c.deadline(c.conn.SetWriteDeadline); err == nil {
		n, err = c.conn.Write(p)
	}
	if err != nil {
		c.pool.cfg.Logger.Warn().Err(err).Stringer("route", c.Route()).Msg("netpool: error on write")
		c.Close()
	}
	return
}

func (c *Conn) Read(p []byte) (n int, err error) {
	if err = c.deadline(c.conn.SetReadDeadline); err == nil {
		n, err = c.conn.Read(p)
	}
	if err != nil {
		if err != io.EOF {
			c.pool.cfg.Logger.Warn().Err(err).Stringer("route", c.Route()).Msg("netpool: error on read")
		}
		c.Close()
	}
	return
}

// Release returns the connection to its pool. The connection is closed
// instead when reuse is false, when it was interrupted, or when the pool
// already holds as many idle connections as it may.
func (c *Conn) Release(reuse bool) {
	c.pool.release(c, reuse)
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(Closed))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Conn) interruptedFlag() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupted
}
