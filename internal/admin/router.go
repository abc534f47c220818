// Package admin exposes the HTTP surface of the chat server: a health check,
// room statistics and the WebSocket entry point.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ledzpl/linechat/internal/chat"
)

const shutdownTimeout = 5 * time.Second

// RoomStats is the read-only view of a room the HTTP handlers need.
type RoomStats interface {
	Peers() []chat.PeerInfo
}

type statsResponse struct {
	Peers   int             `json:"peers"`
	Members []chat.PeerInfo `json:"members"`
}

// NewRouter wires the HTTP routes. ws may be nil to disable WebSocket clients.
func NewRouter(room RoomStats, ws http.Handler, logger *slog.Logger) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	r.Handle("/stats", statsHandler(room, logger)).Methods(http.MethodGet)
	if ws != nil {
		r.Handle("/ws", ws).Methods(http.MethodGet)
	}
	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "linechat is running")
}

func statsHandler(room RoomStats, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		members := room.Peers()
		resp := statsResponse{Peers: len(members), Members: members}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Warn("failed to write stats response", "err", err)
		}
	})
}

// NewServer builds an http.Server with conservative header timeouts. Body
// timeouts are left unset because WebSocket connections are long lived.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Serve runs srv until ctx is cancelled and then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("http server started", "addr", srv.Addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("admin: serve %q: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin: shutdown: %w", err)
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin: serve %q: %w", srv.Addr, err)
	}
	return nil
}
