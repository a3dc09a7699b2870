//go:build darwin || linux
// +build darwin linux

package nettools

import "golang.org/x/sys/unix"

var transientErrnos = []error{
	unix.ECONNRESET,
	unix.EPIPE,
	unix.ECONNABORTED,
	unix.ECONNREFUSED,
	unix.EAGAIN,
}
