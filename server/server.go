package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"mulldb/config"
	"mulldb/txn"
)

// Server accepts TCP connections and spawns a goroutine per client, each
// with its own Transaction Coordinator session (§4.7).
type Server struct {
	cfg      *config.Config
	coord    *txn.Coordinator
	nextConn atomic.Int64
	mu       sync.Mutex // protects listener
	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
}

// New creates a server with the given configuration, backed by coord for
// transaction coordination and storage access.
func New(cfg *config.Config, coord *txn.Coordinator) *Server {
	return &Server{
		cfg:   cfg,
		coord: coord,
		quit:  make(chan struct{}),
	}
}

// ListenAndServe starts accepting connections. It blocks until Shutdown
// is called or an unrecoverable error occurs.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	log.Printf("mulldb listening on %s", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				log.Printf("accept error: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			clientID := fmt.Sprintf("conn-%d", s.nextConn.Add(1))
			c := newConnection(conn, s.cfg, s.coord, clientID)
			c.Handle()
		}()
	}
}

// Addr returns the listener's network address, or nil if not yet listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		return ln.Addr()
	}
	return nil
}

// Shutdown stops accepting new connections and waits for existing ones
// to finish, respecting the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.quit)
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}

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
