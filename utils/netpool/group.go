package netpool

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/frankli0324/go-http1/utils/nettools"
)

// Route identifies the connections that are interchangeable.
type Route struct {
	Host  string
	Port  string
	TLS   bool
	Proxy string // proxy URL the connection is tunneled through, if any
}

func (r Route) String() string {
	s := net.JoinHostPort(r.Host, r.Port)
	if r.TLS {
		s = "tls://" + s
	}
	if r.Proxy != "" {
		s += " via " + r.Proxy
	}
	return s
}

type Config struct {
	// MaxIdlePerRoute bounds the idle connections kept per route, it does
	// not limit active ones. Defaults to 10, negative disables pooling.
	MaxIdlePerRoute int
	// IdleTTL is how long a released connection may stay idle. Defaults to
	// 300 seconds.
	IdleTTL time.Duration
	// FIFO hands out the longest idle connection first instead of the most
	// recently released one.
	FIFO bool
	// IOTimeout bounds every single read and write on a connection.
	IOTimeout time.Duration

	NewLocker func() sync.Locker
	Now       func() time.Time
	Alive     func(net.Conn) bool
	Logger    *zerolog.Logger
}

func (c *Config) defaults() {
	if c.MaxIdlePerRoute == 0 {
		c.MaxIdlePerRoute = 10
	}
	if c.IdleTTL == 0 {
		c.IdleTTL = 300 * time.Second
	}
	if c.NewLocker == nil {
		c.NewLocker = func() sync.Locker { return &sync.Mutex{} }
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Alive == nil {
		c.Alive = nettools.Alive
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
}

// Group is the set of per-route pools shared by every client using it.
type Group struct {
	sync.RWMutex
	pools map[Route]*Pool
	cfg   Config

	sweeper context.CancelFunc
	done    chan struct{}
}

func NewGroup(cfg Config) *Group {
	cfg.defaults()
	return &Group{pools: map[Route]*Pool{}, cfg: cfg}
}

// NewEmpty returns a group with the same configuration and no connections.
func (g *Group) NewEmpty() *Group {
	return NewGroup(g.cfg)
}

func (g *Group) Config() Config { return g.cfg }

// Pool returns the pool of route, creating it on first use.
func (g *Group) Pool(route Route) *Pool {
	g.RLock()
	p, ok := g.pools[route]
	g.RUnlock()
	if ok {
		return p
	}
	g.Lock()
	if p, ok = g.pools[route]; !ok {
		cfg := g.cfg
		p = NewPool(route, &cfg)
		g.pools[route] = p
	}
	g.Unlock()
	return p
}

func (g *Group) Connect(ctx context.Context, route Route, dial func(ctx context.Context) (net.Conn, error)) (*Conn, error) {
	return g.Pool(route).Acquire(ctx, dial)
}

// Idle returns the number of idle connections of route.
func (g *Group) Idle(route Route) int {
	g.RLock()
	p, ok := g.pools[route]
	g.RUnlock()
	if !ok {
		return 0
	}
	return p.Len()
}

// Sweep evicts expired idle connections of every route.
func (g *Group) Sweep() (evicted int) {
	g.RLock()
	pools := make([]*Pool, 0, len(g.pools))
	for _, p := range g.pools {
		pools = append(pools, p)
	}
	g.RUnlock()
	for _, p := range pools {
		evicted += p.Evict()
	}
	if evicted > 0 {
		g.cfg.Logger.Debug().Int("evicted", evicted).Msg("netpool: sweep")
	}
	return
}

// StartSweeper sweeps the group every interval until ctx is done or the
// group is closed. Without it, expired connections are only evicted when
// their route is accessed.
func (g *Group) StartSweeper(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	g.Lock()
	if g.sweeper != nil {
		g.Unlock()
		cancel()
		return
	}
	g.sweeper, g.done = cancel, done
	g.Unlock()

	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				g.Sweep()
			}
		}
	}()
}

// Close stops the sweeper and closes every idle connection.
func (g *Group) Close() {
	g.Lock()
	cancel, done := g.sweeper, g.done
	g.sweeper, g.done = nil, nil
	pools := g.pools
	g.pools = map[Route]*Pool{}
	g.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	for _, p := range pools {
		p.Close()
	}
}
