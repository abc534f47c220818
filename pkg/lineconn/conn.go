// Package lineconn frames a byte stream into newline-delimited text lines and
// splits it into a read half and a write half that can be owned by different
// goroutines.
package lineconn

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// ErrLineTooLong is returned by ReadLine when an inbound line exceeds the
// configured maximum length.
var ErrLineTooLong = errors.New("lineconn: line too long")

// LineReader is the inbound half of a framed connection.
type LineReader interface {
	// ReadLine returns the next line without its terminator. It returns io.EOF
	// once the stream has ended and no partial line remains.
	ReadLine() (string, error)
}

// LineWriter is the outbound half of a framed connection.
type LineWriter interface {
	WriteLine(line string) error
	// Close tears down the whole connection, which also unblocks a pending
	// ReadLine on the other half.
	Close() error
}

// Framed is a line-oriented connection that can be split into halves.
type Framed interface {
	RemoteAddr() string
	Split() (LineReader, LineWriter)
	Close() error
}

// Option customises a Conn.
type Option func(c *Conn)

// WithMaxLineLength bounds the size of a single inbound line. Zero disables the limit.
func WithMaxLineLength(n int) Option {
	return func(c *Conn) {
		if n >= 0 {
			c.maxLineLength = n
		}
	}
}

// WithWriteTimeout sets the deadline applied to every WriteLine call. Zero disables it.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d >= 0 {
			c.writeTimeout = d
		}
	}
}

// Conn frames a net.Conn.
type Conn struct {
	conn net.Conn

	maxLineLength int
	writeTimeout  time.Duration

	reader *reader
	writer *writer

	closeOnce sync.Once
	closeErr  error
}

var _ Framed = (*Conn)(nil)

// New wraps conn. The returned Conn owns conn and closes it on Close.
func New(conn net.Conn, opts ...Option) *Conn {
	c := &Conn{conn: conn}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.reader = &reader{br: bufio.NewReader(conn), max: c.maxLineLength}
	c.writer = &writer{owner: c}
	return c
}

// RemoteAddr reports the peer's network address.
func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Split returns the read and write halves. Each half must be used by at most
// one goroutine at a time; the two halves may be used concurrently.
func (c *Conn) Split() (LineReader, LineWriter) {
	return c.reader, c.writer
}

// Close closes the underlying connection. Subsequent calls return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

type reader struct {
	br  *bufio.Reader
	max int
	buf []byte
}

func (r *reader) ReadLine() (string, error) {
	r.buf = r.buf[:0]

	for {
		chunk, err := r.br.ReadSlice('\n')
		r.buf = append(r.buf, chunk...)

		switch {
		case err == nil:
			return r.finish()
		case errors.Is(err, bufio.ErrBufferFull):
			// A trailing '\r' may still be stripped, hence the +1.
			if r.max > 0 && len(r.buf) > r.max+1 {
				return "", ErrLineTooLong
			}
		case errors.Is(err, io.EOF):
			if len(r.buf) == 0 {
				return "", io.EOF
			}
			return r.finish()
		default:
			return "", err
		}
	}
}

func (r *reader) finish() (string, error) {
	line := trimEOL(r.buf)
	if r.max > 0 && len(line) > r.max {
		return "", ErrLineTooLong
	}
	return string(line), nil
}

func trimEOL(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return b
}

type writer struct {
	owner *Conn
	buf   []byte
}

func (w *writer) WriteLine(line string) error {
	conn := w.owner.conn
	if w.owner.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(w.owner.writeTimeout)); err != nil {
			return err
		}
	}

	w.buf = append(append(w.buf[:0], line...), '\n')
	_, err := conn.Write(w.buf)
	return err
}

func (w *writer) Close() error {
	return w.owner.Close()
}
