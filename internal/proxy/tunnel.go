package proxy

import (
	"bufio"
	"io"
	"net"
	"net/http"
)

// runTunnel establishes the upstream TCP connection for a CONNECT request,
// replies 200 OK on the still-present HTTP framing once connected, then
// removes that framing and glues the two byte streams together opaquely.
//
// http.ReadRequest has already consumed head's headers, and CONNECT carries
// no body (RFC 7231 §4.3.6), so there is nothing left to read before
// dialing — any bytes the client pushes ahead of the 200 OK (e.g. a TLS
// ClientHello) simply sit in br's lookahead buffer until splice drains it.
//
// No ExchangeRecord is emitted for tunnels: once the HTTP decoder is
// removed, the stream is opaque (typically TLS) and there is no response
// head left to parse for a ResponseRecord (see DESIGN.md).
func runTunnel(conn net.Conn, br *bufio.Reader, head *http.Request, dial Dialer, logf func(string, ...any)) {
	if head.Method != http.MethodConnect {
		logf("tunnel: unexpected method %q", head.Method)
		writeBadRequest(conn)
		return
	}

	target := head.RequestURI
	addr, _, err := parseConnectTarget(target)
	if err != nil {
		logf("tunnel: bad target %q: %v", target, err)
		writeBadRequest(conn)
		return
	}

	upstream, err := dial(head.Context(), "tcp", addr)
	if err != nil {
		logf("tunnel: dial %s failed: %+v", addr, summarizeUpstreamError(err))
		writeBadRequest(conn)
		return
	}
	defer upstream.Close()

	if _, err := io.WriteString(conn, connectOKLine); err != nil {
		logf("tunnel: write 200 OK failed: %v", err)
		return
	}

	if _, _, err := splice(conn, br, upstream); err != nil && !isBenignCloseError(err) {
		logf("tunnel: splice %s ended: %v", addr, err)
	}
}
