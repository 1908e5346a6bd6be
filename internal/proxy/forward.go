package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
)

// Dialer dials an upstream address. A net.Dialer.DialContext satisfies this;
// tests substitute a stub.
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

type dialResult struct {
	conn net.Conn
	err  error
}

type requestBodyWriter struct{ cache *BodyCache }

func (w requestBodyWriter) Write(p []byte) (int, error) {
	if err := w.cache.AppendRequestBody(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

type responseBodyWriter struct{ cache *BodyCache }

func (w responseBodyWriter) Write(p []byte) (int, error) {
	if err := w.cache.AppendResponseBody(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// runHTTPForward handles plain forward proxying of one HTTP/1.1 exchange
// over conn. head has already been parsed by HandleConnection; conn/br carry
// any bytes following it (request body, possibly pipelined data).
//
// Dialing upstream and capturing the request body run on separate
// goroutines: bytes land in the BodyCache file in arrival order regardless
// of which goroutine is "ahead", and once the dial succeeds the buffered
// body is replayed from that file in order before the response is read (see
// DESIGN.md for why this net.Conn/goroutine shape stands in for an explicit
// state machine).
func runHTTPForward(conn net.Conn, br *bufio.Reader, head *http.Request, rawHost string, dial Dialer, cache *BodyCache, emitter Emitter, logf func(string, ...any)) {
	defer cache.Close()

	if head.URL.Scheme != "http" {
		logf("forward: rejected scheme %q", head.URL.Scheme)
		writeBadRequest(conn)
		return
	}
	if err := validateHostHeader(rawHost, head.URL); err != nil {
		logf("forward: host mismatch host=%q url=%q", rawHost, head.URL.Host)
		writeBadRequest(conn)
		return
	}

	target := originForm(head.URL)
	host, port, err := splitHostPortDefault(head.URL.Host, defaultForwardPort)
	if err != nil {
		logf("forward: bad host:port %q: %v", head.URL.Host, err)
		writeBadRequest(conn)
		return
	}
	addr, _ := dialTarget(host, port)

	reqRecord := RequestRecord{
		URL:     head.URL.String(),
		Method:  head.Method,
		Headers: flattenHeaderPairs(map[string][]string(head.Header)),
	}
	if reqRecord.Headers == nil {
		reqRecord.Headers = HeaderPairs{}
	}
	reqRecord.Headers["Host"] = rawHost

	// http.ReadRequest already removed Host from head.Header (it folds the
	// header into head.Host/head.URL.Host instead), so it has to be set back
	// explicitly here — HTTP/1.1 requires every request to carry one, and
	// the upstream bytes must match what the client sent (spec §8
	// byte-preservation).
	outHeader := head.Header.Clone()
	stripHopByHopHeaders(outHeader)
	outHeader.Set("Host", rawHost)

	dialCh := make(chan dialResult, 1)
	go func() {
		c, err := dial(head.Context(), "tcp", addr)
		dialCh <- dialResult{conn: c, err: err}
	}()

	bodyDoneCh := make(chan error, 1)
	go func() {
		_, err := io.Copy(requestBodyWriter{cache}, head.Body)
		cache.CloseRequestBody()
		bodyDoneCh <- err
	}()

	dr := <-dialCh
	if dr.err != nil {
		logf("forward: dial %s failed: %+v", addr, summarizeUpstreamError(dr.err))
		writeBadRequest(conn)
		<-bodyDoneCh
		return
	}
	upstream := dr.conn
	defer upstream.Close()

	if _, err := fmt.Fprintf(upstream, "%s %s HTTP/1.1\r\n", head.Method, target); err != nil {
		logf("forward: write request line failed: %v", err)
		return
	}
	if err := outHeader.Write(upstream); err != nil {
		logf("forward: write request headers failed: %v", err)
		return
	}
	if _, err := io.WriteString(upstream, "\r\n"); err != nil {
		logf("forward: write request header terminator failed: %v", err)
		return
	}

	// Replay buffered body bytes in arrival order; blocks until the capture
	// goroutine above closes the stream.
	if err := cache.ReplayRequestBody(upstream); err != nil {
		logf("forward: replay request body failed: %v", err)
		return
	}
	if err := <-bodyDoneCh; err != nil && err != io.EOF {
		logf("forward: request body capture failed: %v", err)
		return
	}

	upstreamReader := bufio.NewReader(upstream)
	resp, err := http.ReadResponse(upstreamReader, head)
	if err != nil {
		logf("forward: read response from %s failed: %+v", addr, summarizeUpstreamError(err))
		writeBadRequest(conn)
		return
	}
	defer resp.Body.Close()

	respHeader := resp.Header.Clone()
	stripHopByHopHeaders(respHeader)

	if _, err := fmt.Fprintf(conn, "HTTP/1.1 %s\r\n", resp.Status); err != nil {
		logf("forward: write status line failed: %v", err)
		return
	}
	if err := respHeader.Write(conn); err != nil {
		logf("forward: write response headers failed: %v", err)
		return
	}
	if _, err := io.WriteString(conn, "\r\n"); err != nil {
		return
	}

	_, copyErr := io.Copy(io.MultiWriter(conn, responseBodyWriter{cache}), resp.Body)
	cache.CloseResponseBody()
	if copyErr != nil {
		logf("forward: response body copy failed: %v", copyErr)
	}

	respRecord := ResponseRecord{
		StatusCode: resp.StatusCode,
		Headers:    flattenHeaderPairs(map[string][]string(respHeader)),
	}
	if cache.HasRequestData() {
		reqRecord.BodyURL = cache.RequestBodyURL()
	}
	if cache.HasResponseData() {
		respRecord.BodyURL = cache.ResponseBodyURL()
	}
	emitter.Publish(ExchangeRecord{Request: reqRecord, Response: respRecord})
}

func writeBadRequest(w io.Writer) {
	_, _ = io.WriteString(w, badRequestLine)
}
