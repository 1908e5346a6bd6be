package proxy

import (
	"context"
	"errors"
	"os"
)

// ProxyError is a structured engine failure. HTTPCode is the response written
// to the client when the HTTP framing is still present on that side; Code is
// a machine-readable taxonomy member for logging.
type ProxyError struct {
	HTTPCode int
	Code     string
	Message  string
}

func (e *ProxyError) Error() string { return e.Code + ": " + e.Message }

// Is reports whether target is a ProxyError with the same Code, so an error
// built from a taxonomy member (as NewBodyCache and Server.Start do) matches
// that member under errors.Is.
func (e *ProxyError) Is(target error) bool {
	t, ok := target.(*ProxyError)
	return ok && t.Code == e.Code
}

// Taxonomy members covering the failure modes engines can report.
var (
	ErrInvalidHTTPMessage = &ProxyError{HTTPCode: 400, Code: "InvalidHTTPMessage", Message: "not a request head"}
	ErrInvalidRequestLine = &ProxyError{HTTPCode: 400, Code: "InvalidRequestLine", Message: "malformed request line"}
	ErrDialFailure        = &ProxyError{HTTPCode: 400, Code: "DialFailure", Message: "failed to connect upstream"}
	ErrPipelineFailure    = &ProxyError{HTTPCode: 0, Code: "PipelineFailure", Message: "handler install failed"}
	ErrCacheOpenFailure   = &ProxyError{HTTPCode: 400, Code: "CacheOpenFailure", Message: "body cache unavailable"}
	ErrBindFailure        = &ProxyError{HTTPCode: 0, Code: "BindFailure", Message: "listener bind failed"}
)

var (
	errEmptyHost    = errors.New("proxy: empty host")
	errInvalidPort  = errors.New("proxy: invalid port")
	errHostMismatch = errors.New("proxy: host header does not match request URL")
	errNotConnect   = errors.New("proxy: first message is not CONNECT")
	errWrongScheme  = errors.New("proxy: unsupported URL scheme")
)

// badRequestLine is the wire response written on the forward-http error
// path.
const badRequestLine = "HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"

// connectOKLine is the wire response written once the upstream TCP
// connection for a tunnel is established.
const connectOKLine = "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"

// isBenignCloseError reports whether err is an ordinary consequence of a
// peer tearing down a connection, not worth classifying as a dial/IO failure.
func isBenignCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	return false
}

// isTimeoutError reports whether err represents a dial or I/O timeout.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return os.IsTimeout(err)
}
