// Package wsline adapts a WebSocket connection to the lineconn framing
// contract: every outbound line is one text frame, and every inbound text
// frame yields the newline-separated lines it carries.
package wsline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ledzpl/linechat/pkg/lineconn"
)

const closeGracePeriod = time.Second

// Option customises a Conn.
type Option func(c *Conn)

// WithMaxLineLength bounds the size of a single inbound frame. Zero disables the limit.
func WithMaxLineLength(n int) Option {
	return func(c *Conn) {
		if n >= 0 {
			c.maxLineLength = n
		}
	}
}

// WithWriteTimeout sets the deadline applied to every WriteLine call.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d >= 0 {
			c.writeTimeout = d
		}
	}
}

// Conn frames a gorilla WebSocket connection.
type Conn struct {
	ws     *websocket.Conn
	remote string

	maxLineLength int
	writeTimeout  time.Duration

	reader *reader

	closeOnce sync.Once
	closeErr  error
}

var _ lineconn.Framed = (*Conn)(nil)

// New wraps ws. remote is reported by RemoteAddr; when empty the socket's
// network address is used.
func New(ws *websocket.Conn, remote string, opts ...Option) *Conn {
	c := &Conn{ws: ws, remote: remote}
	c.reader = &reader{c: c}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.maxLineLength > 0 {
		ws.SetReadLimit(int64(c.maxLineLength))
	}
	if c.remote == "" && ws.RemoteAddr() != nil {
		c.remote = ws.RemoteAddr().String()
	}
	return c
}

func (c *Conn) RemoteAddr() string { return c.remote }

// Split returns the read and write halves. gorilla/websocket supports one
// concurrent reader and one concurrent writer, which is exactly this contract.
func (c *Conn) Split() (lineconn.LineReader, lineconn.LineWriter) {
	return c.reader, writer{c}
}

// Close sends a best-effort close frame and closes the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

type reader struct {
	c       *Conn
	pending []string
}

func (r *reader) ReadLine() (string, error) {
	for len(r.pending) == 0 {
		kind, data, err := r.c.ws.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				return "", lineconn.ErrLineTooLong
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				return "", io.EOF
			default:
				return "", err
			}
		}
		if kind != websocket.TextMessage {
			continue
		}
		r.pending = splitLines(string(data))
	}

	line := r.pending[0]
	r.pending = r.pending[1:]
	return line, nil
}

// splitLines breaks a frame into lines. The final terminator is optional, so
// "hi" and "hi\r\n" both carry the single line "hi".
func splitLines(frame string) []string {
	lines := strings.Split(strings.TrimSuffix(frame, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

type writer struct{ c *Conn }

func (w writer) WriteLine(line string) error {
	if w.c.writeTimeout > 0 {
		if err := w.c.ws.SetWriteDeadline(time.Now().Add(w.c.writeTimeout)); err != nil {
			return err
		}
	}
	return w.c.ws.WriteMessage(websocket.TextMessage, []byte(line))
}

func (w writer) Close() error { return w.c.Close() }

// ServeFunc runs a session over an upgraded connection.
type ServeFunc func(ctx context.Context, conn lineconn.Framed) error

// Handler upgrades GET requests to WebSocket and hands each connection to serve.
func Handler(serve ServeFunc, logger *slog.Logger, opts ...Option) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error response.
			logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}

		conn := New(ws, r.RemoteAddr, opts...)
		defer conn.Close()

		logger.Info("connection accepted", "remote", conn.RemoteAddr(), "transport", "websocket")
		if err := serve(r.Context(), conn); err != nil {
			logger.Warn("error handling client", "remote", conn.RemoteAddr(), "err", err)
		}
	})
}
