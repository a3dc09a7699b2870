package transport

import (
	"io"
)

// Drain reads what is left of body and closes it, which lets the
// connection under it go back to the pool.
func Drain(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, err := io.Copy(io.Discard, body)
	if cerr := body.Close(); err == nil {
		err = cerr
	}
	return err
}
