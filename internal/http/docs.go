// package http contains the request and response type, which are meant
// to be exported. the package name is meant to be same with the top
// level package name so that IDEs and code editors could pick them up
//
// the package also holds the error types shared by every layer, so that
// the transport, the dialer and the client agree on what is retryable.
package http
