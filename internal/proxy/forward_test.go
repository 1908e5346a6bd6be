package proxy

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"testing"
	"time"
)

// fakeUpstream starts a listener that accepts exactly one connection and
// runs handle on it, returning a Dialer that ignores its arguments and
// dials the listener instead.
func fakeUpstream(t *testing.T, handle func(conn net.Conn)) Dialer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}()

	return func(_ context.Context, _, _ string) (net.Conn, error) {
		return net.Dial("tcp", ln.Addr().String())
	}
}

func TestHTTPForwardPlainGET(t *testing.T) {
	dial := fakeUpstream(t, func(conn net.Conn) {
		br := bufio.NewReader(conn)
		req, err := http.ReadRequest(br)
		if err != nil {
			t.Errorf("upstream: read request: %v", err)
			return
		}
		if req.Method != "GET" || req.RequestURI != "/x?y=1" {
			t.Errorf("upstream saw method=%q target=%q, want GET /x?y=1", req.Method, req.RequestURI)
		}
		// http.ReadRequest unconditionally deletes "Host" from req.Header
		// once parsed (it promotes the value to req.Host instead), so that
		// is the field to check here, not req.Header.Get("Host").
		if req.Host != "example.test" {
			t.Errorf("upstream saw Host=%q", req.Host)
		}
		io.WriteString(conn, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
	})

	client, server := net.Pipe()
	emitter := NewEmitter()
	recCh, cancel := emitter.Subscribe(1)
	defer cancel()

	go HandleConnection(server, dial, t.TempDir(), emitter, t.Logf)

	io.WriteString(client, "GET http://example.test/x?y=1 HTTP/1.1\r\nHost: example.test\r\n\r\n")

	resp, err := http.ReadResponse(bufio.NewReader(client), nil)
	if err != nil {
		t.Fatalf("client: read response: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("client got status %d, want 200", resp.StatusCode)
	}

	select {
	case rec := <-recCh:
		if rec.Request.Method != "GET" || rec.Request.URL != "http://example.test/x?y=1" {
			t.Errorf("unexpected request record: %+v", rec.Request)
		}
		if rec.Response.StatusCode != 200 {
			t.Errorf("unexpected response record: %+v", rec.Response)
		}
		if rec.Request.BodyURL != "" || rec.Response.BodyURL != "" {
			t.Errorf("expected no body URLs for a bodyless exchange, got req=%q resp=%q", rec.Request.BodyURL, rec.Response.BodyURL)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no exchange record emitted")
	}
}

func TestHTTPForwardPostBodySplitAcrossWrites(t *testing.T) {
	bodyCh := make(chan string, 1)
	dial := fakeUpstream(t, func(conn net.Conn) {
		br := bufio.NewReader(conn)
		req, err := http.ReadRequest(br)
		if err != nil {
			t.Errorf("upstream: read request: %v", err)
			return
		}
		body, _ := io.ReadAll(req.Body)
		bodyCh <- string(body)
		io.WriteString(conn, "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")
	})

	client, server := net.Pipe()
	dir := t.TempDir()
	emitter := NewEmitter()
	recCh, cancel := emitter.Subscribe(1)
	defer cancel()

	go HandleConnection(server, dial, dir, emitter, t.Logf)

	io.WriteString(client, "POST http://example.test/upload HTTP/1.1\r\nHost: example.test\r\nContent-Length: 5\r\n\r\n")
	// Split the body across two writes to exercise arrival-order buffering.
	io.WriteString(client, "he")
	time.Sleep(10 * time.Millisecond)
	io.WriteString(client, "llo")

	if _, err := http.ReadResponse(bufio.NewReader(client), nil); err != nil {
		t.Fatalf("client: read response: %v", err)
	}

	select {
	case body := <-bodyCh:
		if body != "hello" {
			t.Fatalf("upstream body = %q, want %q", body, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("upstream never received body")
	}

	select {
	case rec := <-recCh:
		if rec.Request.BodyURL == "" {
			t.Fatal("expected request body URL to be populated")
		}
		data, err := os.ReadFile(rec.Request.BodyURL)
		if err != nil {
			t.Fatalf("read captured body file: %v", err)
		}
		if string(data) != "hello" {
			t.Fatalf("captured body = %q, want %q", data, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no exchange record emitted")
	}
}

func TestHTTPForwardHostMismatchRejected(t *testing.T) {
	dialed := make(chan struct{}, 1)
	dial := func(_ context.Context, _, _ string) (net.Conn, error) {
		select {
		case dialed <- struct{}{}:
		default:
		}
		return nil, context.DeadlineExceeded
	}

	client, server := net.Pipe()
	go HandleConnection(server, dial, t.TempDir(), NoOpEmitter{}, t.Logf)

	io.WriteString(client, "GET http://a.test/ HTTP/1.1\r\nHost: b.test\r\n\r\n")

	buf := make([]byte, len(badRequestLine))
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if string(buf) != badRequestLine {
		t.Fatalf("got %q, want %q", buf, badRequestLine)
	}

	select {
	case <-dialed:
		t.Fatal("expected no dial attempt on host mismatch")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHTTPForwardDialFailureWritesBadRequest(t *testing.T) {
	dial := func(_ context.Context, _, _ string) (net.Conn, error) {
		return nil, context.DeadlineExceeded
	}

	client, server := net.Pipe()
	emitter := NewEmitter()
	recCh, cancel := emitter.Subscribe(1)
	defer cancel()

	go HandleConnection(server, dial, t.TempDir(), emitter, t.Logf)

	io.WriteString(client, "GET http://example.test/ HTTP/1.1\r\nHost: example.test\r\n\r\n")

	buf := make([]byte, len(badRequestLine))
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if string(buf) != badRequestLine {
		t.Fatalf("got %q, want %q", buf, badRequestLine)
	}

	select {
	case <-recCh:
		t.Fatal("expected no exchange record on dial failure")
	case <-time.After(100 * time.Millisecond):
	}
}
