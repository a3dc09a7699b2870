package internal

import (
	"github.com/frankli0324/go-http1/internal/dialer"
	"github.com/frankli0324/go-http1/internal/http"
)

// UseDialer replaces the dialer of the client with the one wrap returns.
// wrap receives the current dialer, a private copy of the default one if
// none was set, so that wrappers could be stacked.
func (c *Client) UseDialer(wrap func(http.Dialer) http.Dialer) {
	cur := c.dialer
	if cur == nil {
		cur = defaultDialer.Clone()
	}
	c.dialer = wrap(cur)
}

// UseCoreDialer calls configure on every *CoreDialer in the dialer chain,
// returns whether there was any.
func (c *Client) UseCoreDialer(configure func(*dialer.CoreDialer)) (ok bool) {
	c.UseDialer(func(d http.Dialer) http.Dialer {
		for cd := d; cd != nil; cd = cd.Unwrap() {
			if core, isCore := cd.(*dialer.CoreDialer); isCore {
				configure(core)
				ok = true
			}
		}
		return d
	})
	return
}
