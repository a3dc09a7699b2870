//go:build darwin || linux
// +build darwin linux

package nettools

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

var _ = func() error { // make sure this executes before func init()
	supported[ModeSelect] = selectReadable
	return nil
}()

const fdSetSize = int(unsafe.Sizeof(unix.FdSet{})) * 8

var errFDTooLarge = errors.New("nettools: fd exceeds FD_SETSIZE")

func selectReadable(fd int) (bool, error) {
	if fd >= fdSetSize {
		return false, errFDTooLarge
	}
	var set unix.FdSet
	set.Set(fd)
	for {
		tv := unix.Timeval{}
		n, err := unix.Select(fd+1, &set, nil, nil, &tv)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0 && set.IsSet(fd), nil
	}
}
