package proxy

import (
	"io"
	"os"
	"sync"
)

// replayChunkSize bounds how much of a body file is read into memory at
// once during replay.
const replayChunkSize = 4096

// bodyStream is a file-backed append/replay buffer: a writer appends body
// bytes as they arrive while, concurrently, a reader can drain everything
// written so far and then keep following the file as more arrives — a
// "tail -f" pattern, so a replay never has to hold the whole body in
// memory, and never has to wait for the body to finish before starting to
// forward it.
type bodyStream struct {
	mu      sync.Mutex
	cond    *sync.Cond
	file    *os.File
	written int64
	closed  bool
}

// newBodyStream opens path for writing (creating it, truncating any existing
// file) and wires a bodyStream around it; appends then write sequentially
// from the start of the file.
func newBodyStream(path string) (*bodyStream, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	s := &bodyStream{file: f}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// append writes b to the stream and wakes any blocked tail readers. Returns
// once bytes are handed to the OS buffer; it does not fsync.
func (s *bodyStream) append(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}
	n, err := s.file.Write(b)
	s.written += int64(n)
	s.cond.Broadcast()
	return err
}

// hasData reports whether any bytes have been written yet: true after one
// or more append calls with nonempty input.
func (s *bodyStream) hasData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written > 0
}

// close stops accepting writes, wakes any tail readers so they can observe
// end-of-stream, and releases the underlying file handle.
func (s *bodyStream) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cond.Broadcast()
	return s.file.Close()
}

// tail streams every byte written to the stream to w, following the file as
// more is appended, and returns once the stream is closed (or a read/write
// error occurs). Called after the stream has already been closed, it simply
// drains whatever was written without blocking.
//
// It reopens the file for an independent read cursor rather than sharing
// the write file handle's offset, so it may run concurrently with the
// goroutine still calling append.
func (s *bodyStream) tail(w io.Writer) error {
	s.mu.Lock()
	path := s.file.Name()
	s.mu.Unlock()

	rf, err := os.Open(path)
	if err != nil {
		return err
	}
	defer rf.Close()

	buf := make([]byte, replayChunkSize)
	var offset int64
	for {
		s.mu.Lock()
		for s.written <= offset && !s.closed {
			s.cond.Wait()
		}
		target := s.written
		done := s.closed && target <= offset
		s.mu.Unlock()
		if done {
			return nil
		}

		for offset < target {
			n, rerr := rf.ReadAt(buf, offset)
			if n > 0 {
				if _, werr := w.Write(buf[:n]); werr != nil {
					return werr
				}
				offset += int64(n)
			}
			if rerr != nil && rerr != io.EOF {
				return rerr
			}
			if n == 0 {
				break
			}
		}
	}
}
