//go:build !darwin && !linux
// +build !darwin,!linux

package nettools

import "syscall"

var transientErrnos = []error{
	syscall.ECONNRESET,
	syscall.EPIPE,
	syscall.ECONNABORTED,
	syscall.ECONNREFUSED,
	syscall.EAGAIN,
}
