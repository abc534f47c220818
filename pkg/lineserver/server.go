// Package lineserver runs a TCP accept loop that hands every connection to a
// handler in its own goroutine.
package lineserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/tevino/abool"
)

// ErrNilHandler is returned when the server is started without a handler.
var ErrNilHandler = errors.New("lineserver: connection handler required")

// Handler serves one accepted connection. The server closes conn after the
// handler returns; a non-nil error is logged and affects no other connection.
type Handler func(ctx context.Context, conn net.Conn) error

// Server wraps the TCP listener lifecycle.
type Server struct {
	Addr string

	logger   *slog.Logger
	stopping *abool.AtomicBool
	ready    chan net.Addr
}

// New creates a Server bound to addr once ListenAndServe runs.
func New(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		Addr:     addr,
		logger:   logger,
		stopping: abool.New(),
		ready:    make(chan net.Addr, 1),
	}
}

// Ready yields the bound listener address once the server is accepting.
func (s *Server) Ready() <-chan net.Addr {
	return s.ready
}

// ListenAndServe listens on s.Addr and serves until ctx is cancelled or the
// listener fails.
func (s *Server) ListenAndServe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}

	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("lineserver: listen %q: %w", s.Addr, err)
	}

	return s.Serve(ctx, listener, handler)
}

// Serve accepts connections on listener until ctx is cancelled, in which case
// it returns ctx.Err(). Any other accept failure is returned as fatal.
func (s *Server) Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}
	defer listener.Close()

	shutdown := make(chan struct{})
	defer close(shutdown)

	go func() {
		select {
		case <-ctx.Done():
			s.stopping.Set()
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("listener close error", "err", err)
			}
		case <-shutdown:
		}
	}()

	s.logger.Info("server started", "addr", listener.Addr().String())
	select {
	case s.ready <- listener.Addr():
	default:
	}

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.stopping.IsSet() {
				return ctx.Err()
			}
			return fmt.Errorf("lineserver: accept: %w", err)
		}

		s.logger.Info("connection accepted", "remote", conn.RemoteAddr().String())
		go s.handleConn(ctx, conn, handler)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()

	if err := handler(ctx, conn); err != nil {
		s.logger.Warn("error handling client", "remote", conn.RemoteAddr().String(), "err", err)
	}
}
