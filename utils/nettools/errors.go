package nettools

import (
	"errors"
	"net"
	"os"
)

// IsTransient reports socket errors that are worth a new attempt on a
// fresh connection.
func IsTransient(err error) bool {
	for _, errno := range transientErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// IsTimeout reports deadline and i/o timeout errors.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsDNS reports name resolution failures, which are never retried.
func IsDNS(err error) bool {
	var de *net.DNSError
	return errors.As(err, &de)
}
