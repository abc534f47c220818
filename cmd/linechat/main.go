package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/ledzpl/linechat/internal/admin"
	"github.com/ledzpl/linechat/internal/chat"
	"github.com/ledzpl/linechat/internal/config"
	"github.com/ledzpl/linechat/pkg/lineconn"
	"github.com/ledzpl/linechat/pkg/lineserver"
	"github.com/ledzpl/linechat/pkg/wsline"
)

func main() {
	cfg := config.FromEnv()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "TCP address for line-oriented chat clients")
	flag.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP address for /healthz, /stats and /ws (disabled when empty)")
	flag.IntVar(&cfg.OutboxSize, "outbox-size", cfg.OutboxSize, "Messages buffered per peer before a slow peer is dropped")
	flag.IntVar(&cfg.MaxLineLength, "max-line-length", cfg.MaxLineLength, "Maximum inbound line length in bytes")
	flag.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "Deadline for every write to a peer")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	flag.Parse()

	cfg = cfg.Sanitize()
	logger := cfg.NewLogger(os.Stdout)

	room := chat.NewRoom(
		chat.WithLogger(logger),
		chat.WithOutboxSize(cfg.OutboxSize),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.HTTPAddr != "" {
		ws := wsline.Handler(func(_ context.Context, conn lineconn.Framed) error {
			// Sessions follow the process context, not the request's.
			return chat.HandleSession(ctx, room, conn)
		}, logger,
			wsline.WithMaxLineLength(cfg.MaxLineLength),
			wsline.WithWriteTimeout(cfg.WriteTimeout),
		)

		httpServer := admin.NewServer(cfg.HTTPAddr, admin.NewRouter(room, ws, logger))
		go func() {
			if err := admin.Serve(ctx, httpServer, logger); err != nil {
				logger.Error("http server stopped with error", "err", err)
				cancel()
			}
		}()
	}

	server := lineserver.New(cfg.Addr, logger)
	err := server.ListenAndServe(ctx, func(ctx context.Context, conn net.Conn) error {
		framed := lineconn.New(conn,
			lineconn.WithMaxLineLength(cfg.MaxLineLength),
			lineconn.WithWriteTimeout(cfg.WriteTimeout),
		)
		return chat.HandleSession(ctx, room, framed)
	})

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped with error", "err", err)
		cancel()
		os.Exit(1)
	}
}
