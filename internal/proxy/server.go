package proxy

import (
	"errors"
	"log"
	"net"
	"sync"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// CacheDir is where BodyCache files are written for forward-path
	// exchanges.
	CacheDir string
	// Emitter receives completed-exchange records. Defaults to NoOpEmitter.
	Emitter Emitter
	// Dialer dials upstream connections. Defaults to (&net.Dialer{}).DialContext.
	Dialer Dialer
	// Logf receives printf-style log lines. Defaults to log.Printf.
	Logf func(string, ...any)
}

// Server is the listener facade: for each accepted connection it runs
// HandleConnection on its own goroutine.
type Server struct {
	cfg ServerConfig

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// NewServer constructs a Server bound to no socket yet; call Start to bind.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Emitter == nil {
		cfg.Emitter = NoOpEmitter{}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = (&net.Dialer{}).DialContext
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	return &Server{cfg: cfg}
}

// Start binds addr ("ip:port") and begins accepting connections in the
// background, returning once the bind has completed. Bind failure is
// reported as a BindFailure-flavored error.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &ProxyError{HTTPCode: ErrBindFailure.HTTPCode, Code: ErrBindFailure.Code, Message: err.Error()}
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.cfg.Logf("server: accept failed: %v", err)
			continue
		}
		go HandleConnection(conn, s.cfg.Dialer, s.cfg.CacheDir, s.cfg.Emitter, s.cfg.Logf)
	}
}

// Addr returns the bound listener address, or nil if Start has not
// completed successfully.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop closes the listening socket and waits for the accept loop to exit.
// In-flight connections are not forcibly drained; callers that need a
// bounded shutdown window should close those separately (see
// cmd/proxyserver, which layers a grace period on top).
func (s *Server) Stop() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	s.wg.Wait()
	return err
}
