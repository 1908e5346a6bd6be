package proxy

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/zeebo/xxh3"
)

var connCounter atomic.Uint64

// connectionID derives a short, stable-enough identifier for log correlation
// across a connection's lifetime, hashed with xxh3.
func connectionID(local, remote net.Addr) string {
	seq := connCounter.Add(1)
	sum := xxh3.HashString(fmt.Sprintf("%s|%s|%d", local, remote, seq))
	return fmt.Sprintf("%016x", sum)
}

// HandleConnection reads the first inbound message on conn, classifies it,
// and delegates to the matching engine.
// dial is used for both engines' upstream connect; cacheDir roots the
// BodyCache used by the forward path; emitter receives completed-exchange
// records. logf receives printf-style log lines; pass log.Printf for
// production use.
func HandleConnection(conn net.Conn, dial Dialer, cacheDir string, emitter Emitter, logf func(string, ...any)) {
	defer conn.Close()
	if logf == nil {
		logf = log.Printf
	}

	id := connectionID(conn.LocalAddr(), conn.RemoteAddr())
	br := bufio.NewReader(conn)

	head, rawHost, br, err := parseRequestHead(br)
	if err != nil {
		logf("[%s] router: invalid first message from %s: %v", id, conn.RemoteAddr(), err)
		writeBadRequest(conn)
		_ = closeWrite(conn)
		return
	}
	logf("[%s] router: %s %s from %s", id, head.Method, requestLineTarget(head), conn.RemoteAddr())

	if head.Method == http.MethodConnect {
		runTunnel(conn, br, head, dial, func(format string, args ...any) {
			logf("[%s] "+format, append([]any{id}, args...)...)
		})
		return
	}

	cache, err := NewBodyCache(cacheDir)
	if err != nil {
		logf("[%s] router: body cache unavailable: %v", id, err)
		writeBadRequest(conn)
		return
	}
	runHTTPForward(conn, br, head, rawHost, dial, cache, emitter, func(format string, args ...any) {
		logf("[%s] "+format, append([]any{id}, args...)...)
	})
}

func requestLineTarget(r *http.Request) string {
	if r.Method == http.MethodConnect {
		return r.RequestURI
	}
	return r.URL.String()
}
