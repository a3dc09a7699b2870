package nettools

import (
	"net"
	"syscall"
)

type Mode int

const (
	ModePoll Mode = iota
	ModeSelect
)

// a probe reports whether fd has anything to read without blocking. For an
// idle HTTP/1 connection that is either a FIN from the peer or garbage,
// both of which make the connection unusable.
type probe func(fd int) (readable bool, err error)

var (
	supported = map[Mode]probe{}
	picked    probe
)

func init() {
	for _, mode := range []Mode{ModePoll, ModeSelect} {
		if supported[mode] != nil {
			picked = supported[mode]
			break
		}
	}
}

// Use switches the probing mode, it returns false if the mode isn't
// supported on this platform. Not safe to call concurrently with Alive.
func Use(mode Mode) bool {
	if p := supported[mode]; p != nil {
		picked = p
		return true
	}
	return false
}

// Alive tells whether an idle connection could still carry a request.
// Connections that don't expose a file descriptor (in-memory pipes, custom
// streams) are assumed to be alive, their failures would surface on write.
func Alive(c net.Conn) bool {
	if picked == nil {
		return true
	}
	rc := connToFD(c)
	if rc == nil {
		return true
	}
	alive := true
	// It's annoying that golang docs didn't specify whether the
	// control action will be executed if error occurrs
	// however according to the source code errors would only
	// happen before the control action, e.g. on a closed fd
	if err := rc.Control(func(fd uintptr) {
		readable, err := picked(int(fd))
		alive = err != nil || !readable
	}); err != nil {
		return false
	}
	return alive
}

func connToFD(raw net.Conn) syscall.RawConn {
	if t, ok := raw.(interface{ NetConn() net.Conn }); ok {
		// is *tls.Conn or polyfilled TLS Connection
		raw = t.NetConn()
	}
	if c, ok := raw.(syscall.Conn); ok {
		if c, err := c.SyscallConn(); err == nil {
			return c
		}
	}
	return nil
}
