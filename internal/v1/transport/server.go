package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/incognita-games/lobbyd/internal/v1/logging"
)

// Server accepts TCP connections and hands each one to the dispatcher as
// an independent session.
type Server struct {
	addr string
	d    *Dispatcher

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// NewServer builds a server for the given listen address. Nothing is
// bound until Listen or Serve.
func NewServer(addr string, d *Dispatcher) *Server {
	return &Server{addr: addr, d: d}
}

// Listen claims the address. It is separate from Serve so callers can
// fail fast on a bad address and tests can read the bound port.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until ctx is cancelled or the listener fails.
// Cancellation returns nil.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mu.Lock()
		ln = s.ln
		s.mu.Unlock()
	}

	// Closing the listener is what unblocks Accept.
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	logging.Info(ctx, "listening", zap.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.d.HandleConnection(ctx, conn)
		}()
	}
}

// Shutdown closes the listener and waits for in-flight sessions, or gives
// up when ctx ends first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
