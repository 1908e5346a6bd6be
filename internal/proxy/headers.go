package proxy

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// hopByHopHeaders must never be forwarded to the next hop, mirroring the
// teacher's stripHopByHopHeaders table.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// stripHopByHopHeaders removes hop-by-hop headers in place, including any
// extra header names listed in a Connection header (RFC 7230 §6.1).
func stripHopByHopHeaders(header http.Header) {
	if header == nil {
		return
	}
	for _, connHeaders := range header.Values("Connection") {
		for _, h := range strings.Split(connHeaders, ",") {
			if h = strings.TrimSpace(h); h != "" && httpguts.ValidHeaderFieldName(h) {
				header.Del(h)
			}
		}
	}
	for _, h := range hopByHopHeaders {
		header.Del(h)
	}
}

// validateHostHeader requires the literal Host header the client sent to be
// present, well-formed, and to match the absolute URL's host exactly
// (case-insensitive per RFC 7230 §5.4), using the same header-token
// validation net/http itself relies on (golang.org/x/net/http/httpguts).
//
// rawHost must come from parseRequestHead, not head.Header.Get("Host"):
// net/http's ReadRequest deletes the Host header from req.Header once it has
// used it, and for an absolute-form request-target it ignores the header
// entirely in favor of the request-line's own authority (RFC 7230 §5.3), so
// req.Header/req.Host can never disagree with req.URL.Host no matter what
// the client actually sent.
func validateHostHeader(rawHost string, u *url.URL) error {
	if rawHost == "" || !httpguts.ValidHostHeader(rawHost) {
		return errHostMismatch
	}
	if !strings.EqualFold(rawHost, u.Host) {
		return errHostMismatch
	}
	return nil
}

// parseRequestHead reads the next HTTP/1.1 request off br, returning the
// parsed head, the literal Host header the client sent, and a reader
// positioned exactly where the head leaves off (ready for a body read or,
// on the tunnel path, raw post-CONNECT bytes).
//
// The request-line and header block are parsed once here via net/textproto
// (the same package net/http's own ReadRequest uses internally) purely to
// recover the raw Host value before it is lost. The exact bytes consumed
// doing that are then replayed ahead of the remaining reader into a second,
// ordinary http.ReadRequest call, so net/http still builds the returned
// *http.Request (method, URL, body reader, trailers) exactly as it always
// has — nothing about request/body parsing is reimplemented here.
func parseRequestHead(br *bufio.Reader) (head *http.Request, rawHost string, next *bufio.Reader, err error) {
	var raw bytes.Buffer
	teed := bufio.NewReader(io.TeeReader(br, &raw))
	tp := textproto.NewReader(teed)

	tp.ReadLine()
	mimeHeader, _ := tp.ReadMIMEHeader()
	rawHost = textproto.MIMEHeader(mimeHeader).Get("Host")

	next = bufio.NewReader(io.MultiReader(bytes.NewReader(raw.Bytes()), br))
	head, err = http.ReadRequest(next)
	return head, rawHost, next, err
}

// originForm renders the origin-form request-target: path, or path?query,
// with no scheme/authority.
func originForm(u *url.URL) string {
	if u.RawQuery == "" {
		if u.Path == "" {
			return "/"
		}
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}
