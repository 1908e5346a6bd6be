package proxy

import (
	"io"
	"net"
)

// halfCloser is implemented by net.TCPConn; used to propagate half-close so
// a peer can finish draining buffered writes after the other side is done
// reading.
type halfCloser interface {
	CloseWrite() error
}

// closeWrite half-closes the write direction of conn if it supports it,
// falling back to a full close otherwise.
func closeWrite(conn net.Conn) error {
	if hc, ok := conn.(halfCloser); ok {
		return hc.CloseWrite()
	}
	return conn.Close()
}

// spliceResult carries one direction's outcome from splice.
type spliceResult struct {
	n   int64
	err error
}

// splice glues two connections together for the tunnel path: bytes flow in
// both directions in arrival order with no reordering, and each side's close
// half-closes the other so buffered writes can still drain before both
// sides finish.
//
// a is read via aReader (which may already hold bytes buffered ahead of the
// underlying socket read, e.g. bufio lookahead from header parsing); b is
// read directly. splice blocks until both directions finish.
func splice(a net.Conn, aReader io.Reader, b net.Conn) (aToB, bToA int64, err error) {
	resultCh := make(chan spliceResult, 1)
	go func() {
		n, copyErr := io.Copy(b, aReader)
		_ = closeWrite(b)
		resultCh <- spliceResult{n: n, err: copyErr}
	}()

	bToA, err = io.Copy(a, b)
	_ = closeWrite(a)

	other := <-resultCh
	aToB = other.n
	if err == nil {
		err = other.err
	}
	return aToB, bToA, err
}
