package proxy

import (
	"context"
	"io"
	"net"
	"testing"
)

func TestRouterRejectsInvalidFirstMessage(t *testing.T) {
	dial := func(_ context.Context, _, _ string) (net.Conn, error) {
		t.Fatal("dial should not be invoked for an invalid first message")
		return nil, nil
	}

	client, server := tcpPipe(t)
	defer client.Close()
	go HandleConnection(server, dial, t.TempDir(), NoOpEmitter{}, t.Logf)

	io.WriteString(client, "not even close to an HTTP request\r\n\r\n")

	buf := make([]byte, len(badRequestLine))
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if string(buf) != badRequestLine {
		t.Fatalf("got %q, want %q", buf, badRequestLine)
	}
}

func TestConnectionIDIsUniquePerCall(t *testing.T) {
	local, remote := tcpPipe(t)
	defer local.Close()
	defer remote.Close()

	a := connectionID(local.LocalAddr(), local.RemoteAddr())
	b := connectionID(local.LocalAddr(), local.RemoteAddr())
	if a == b {
		t.Fatalf("expected distinct connection IDs, got %q twice", a)
	}
}
