package proxy

import (
	"io"
	"path/filepath"

	"github.com/google/uuid"
)

// BodyCache is the per-exchange file-backed sink for request/response body
// bytes. Files are addressed by a generated unique name and are never
// deleted by the cache itself — see internal/proxy/cleanup.go for the
// opt-in janitor that owns that cleanup instead.
type BodyCache struct {
	dir string

	reqPath  string
	respPath string

	req  *bodyStream
	resp *bodyStream
}

// NewBodyCache generates a unique base name under dir and eagerly opens both
// append streams, failing fast with the CacheOpenFailure taxonomy member if
// either cannot be created.
func NewBodyCache(dir string) (*BodyCache, error) {
	id := uuid.NewString()
	reqPath := filepath.Join(dir, "req-"+id)
	respPath := filepath.Join(dir, "resp-"+id)

	req, err := newBodyStream(reqPath)
	if err != nil {
		return nil, &ProxyError{HTTPCode: ErrCacheOpenFailure.HTTPCode, Code: ErrCacheOpenFailure.Code, Message: err.Error()}
	}
	resp, err := newBodyStream(respPath)
	if err != nil {
		req.close()
		return nil, &ProxyError{HTTPCode: ErrCacheOpenFailure.HTTPCode, Code: ErrCacheOpenFailure.Code, Message: err.Error()}
	}

	return &BodyCache{
		dir:      dir,
		reqPath:  reqPath,
		respPath: respPath,
		req:      req,
		resp:     resp,
	}, nil
}

// AppendRequestBody appends bytes to the request body file.
func (c *BodyCache) AppendRequestBody(b []byte) error { return c.req.append(b) }

// AppendResponseBody appends bytes to the response body file.
func (c *BodyCache) AppendResponseBody(b []byte) error { return c.resp.append(b) }

// HasRequestData reports whether any request body bytes were ever written.
func (c *BodyCache) HasRequestData() bool { return c.req.hasData() }

// HasResponseData reports whether any response body bytes were ever written.
func (c *BodyCache) HasResponseData() bool { return c.resp.hasData() }

// RequestBodyURL returns the read-back path for the captured request body.
func (c *BodyCache) RequestBodyURL() string { return c.reqPath }

// ResponseBodyURL returns the read-back path for the captured response body.
func (c *BodyCache) ResponseBodyURL() string { return c.respPath }

// ReplayRequestBody streams everything written to the request body file so
// far to w, following the file until the stream is closed. Used by
// HTTPForwardEngine to forward buffered body bytes, in arrival order, once
// the upstream connection is ready.
func (c *BodyCache) ReplayRequestBody(w io.Writer) error {
	return c.req.tail(w)
}

// TailResponseBody streams the response body file to w as bytes are
// appended, following the file until CloseResponseBody is called. Used by
// a caller that wants to observe response bytes as they are captured.
func (c *BodyCache) TailResponseBody(w io.Writer) error {
	return c.resp.tail(w)
}

// CloseRequestBody stops accepting request body writes early, e.g. once the
// engine knows no more body bytes are coming.
func (c *BodyCache) CloseRequestBody() error { return c.req.close() }

// CloseResponseBody stops accepting response body writes, signalling any
// tailing reader that the response is complete.
func (c *BodyCache) CloseResponseBody() error { return c.resp.close() }

// Close releases both append streams.
func (c *BodyCache) Close() {
	c.req.close()
	c.resp.close()
}
