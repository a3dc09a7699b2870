package netpool

import (
	"context"
	"net"
	"sync"
	"time"
)

// Pool holds the idle connections of a single route. Idle connections are
// bounded, active ones are not: Acquire never waits for capacity.
type Pool struct {
	mu     sync.Locker
	idle   []*Conn
	route  Route
	cfg    *Config
	closed bool
}

func NewPool(route Route, cfg *Config) *Pool {
	cfg.defaults()
	return &Pool{mu: cfg.NewLocker(), route: route, cfg: cfg}
}

// Acquire hands out an idle connection if a usable one exists, or dials a
// new one. Dialing happens without holding the pool lock.
func (p *Pool) Acquire(ctx context.Context, dial func(ctx context.Context) (net.Conn, error)) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var stale []*Conn
	defer func() { p.closeAll(stale, "stale") }()
	for {
		now := p.cfg.Now()
		p.mu.Lock()
		if len(p.idle) == 0 {
			p.mu.Unlock()
			break
		}
		var c *Conn
		if p.cfg.FIFO {
			c, p.idle[0] = p.idle[0], nil
			p.idle = p.idle[1:]
		} else {
			c = p.idle[len(p.idle)-1]
			p.idle[len(p.idle)-1] = nil
			p.idle = p.idle[:len(p.idle)-1]
		}
		if !now.Before(c.expiry) {
			c.state.Store(int32(Closed))
			p.mu.Unlock()
			stale = append(stale, c)
			continue
		}
		c.state.Store(int32(Active))
		c.uses++
		p.mu.Unlock()

		if !p.cfg.Alive(c.conn) {
			stale = append(stale, c)
			continue
		}
		c.conn.SetDeadline(time.Time{})
		p.cfg.Logger.Debug().Stringer("route", p.route).Msg("netpool: reusing idle connection")
		return c, nil
	}

	raw, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	p.cfg.Logger.Debug().Stringer("route", p.route).Stringer("remote", raw.RemoteAddr()).Msg("netpool: dialed")
	return newConn(p, raw), nil
}

func (p *Pool) release(c *Conn, reuse bool) {
	if !reuse || c.interruptedFlag() {
		c.Close()
		return
	}
	now := p.cfg.Now()
	p.mu.Lock()
	if c.State() != Active {
		// released twice or already closed
		p.mu.Unlock()
		return
	}
	expired := p.evictLocked(now)
	if p.closed || len(p.idle) >= p.cfg.MaxIdlePerRoute {
		c.state.Store(int32(Closed))
		p.mu.Unlock()
		p.closeAll(expired, "expired")
		p.closeAll([]*Conn{c}, "pool full")
		return
	}
	c.expiry = now.Add(p.cfg.IdleTTL)
	c.state.Store(int32(Idle))
	p.idle = append(p.idle, c)
	p.mu.Unlock()
	p.closeAll(expired, "expired")
}

// Evict closes the idle connections past their expiry, it returns how many
// were closed.
func (p *Pool) Evict() int {
	p.mu.Lock()
	expired := p.evictLocked(p.cfg.Now())
	p.mu.Unlock()
	p.closeAll(expired, "expired")
	return len(expired)
}

func (p *Pool) evictLocked(now time.Time) (expired []*Conn) {
	kept := p.idle[:0]
	for _, c := range p.idle {
		if now.Before(c.expiry) {
			kept = append(kept, c)
		} else {
			c.state.Store(int32(Closed))
			expired = append(expired, c)
		}
	}
	for i := len(kept); i < len(p.idle); i++ {
		p.idle[i] = nil
	}
	p.idle = kept
	return
}

// Len returns the number of idle connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Close closes every idle connection. Connections released afterwards are
// closed too.
func (p *Pool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle, p.closed = nil, true
	for _, c := range idle {
		c.state.Store(int32(Closed))
	}
	p.mu.Unlock()
	p.closeAll(idle, "pool closed")
}

func (p *Pool) closeAll(cc []*Conn, reason string) {
	for _, c := range cc {
		p.cfg.Logger.Debug().Stringer("route", p.route).Str("reason", reason).Msg("netpool: closing connection")
		c.Close()
	}
}

type chanLocker chan struct{}

// NewChanLocker returns a lock backed by a single-slot channel. Pools built
// with it behave the same as with a mutex, it exists for callers that
// schedule pool access through channels.
func NewChanLocker() sync.Locker { return make(chanLocker, 1) }

func (l chanLocker) Lock()   { l <- struct{}{} }
func (l chanLocker) Unlock() { <-l }
