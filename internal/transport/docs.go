// package transport contains implementations to requirements on *message syntaxes*
// defined by http related RFCs.
//
// as of 2022.06, RFCs that were to define HTTP/1.1 (RFC753x) are obsoleted by:
//
//	HTTP Semantics (RFC9110)
//	HTTP Caching (RFC9111) and
//	HTTP/1.1 (RFC9112)
//
// only the HTTP/1.x syntax is implemented here. messages are parsed straight
// off a buffered connection, and a body decides on its own when the
// connection under it could go back to the pool.
//
// [net/url.URL] is reused on the "semantics" part, headers are kept in an
// ordered multimap instead of [net/http.Header] so that the wire order survives.
package transport
