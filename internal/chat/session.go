package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ledzpl/linechat/pkg/lineconn"
)

// UsernamePrompt is the first line sent on every new connection.
const UsernamePrompt = "Enter your username:"

type sessionState int

const (
	stateConnected sessionState = iota
	stateAwaitingUsername
	stateJoined
	stateTerminated
)

func (s sessionState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateAwaitingUsername:
		return "awaiting-username"
	case stateJoined:
		return "joined"
	case stateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("sessionState(%d)", int(s))
	}
}

// HandleSession runs one connection through the room until its inbound
// stream ends. Cancelling ctx closes the connection.
func HandleSession(ctx context.Context, room *Room, conn lineconn.Framed) error {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	err := newSession(room, conn).run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

type session struct {
	room *Room
	conn lineconn.Framed
	id   PeerID

	state    sessionState
	username string

	reader lineconn.LineReader
	writer lineconn.LineWriter
	peer   *Peer

	cleanup sync.Once
}

func newSession(room *Room, conn lineconn.Framed) *session {
	return &session{
		room:  room,
		conn:  conn,
		id:    NewPeerID(),
		state: stateConnected,
	}
}

func (s *session) run() error {
	defer s.cleanupSession()

	if err := s.setup(); err != nil || s.state != stateJoined {
		return err
	}

	if err := s.readLoop(); err != nil {
		return s.handleReadError(err)
	}
	return nil
}

// setup prompts for a username and joins the room. A client that hangs up
// before naming itself leaves the session short of stateJoined without an
// error.
func (s *session) setup() error {
	s.reader, s.writer = s.conn.Split()

	if err := s.writer.WriteLine(UsernamePrompt); err != nil {
		return fmt.Errorf("send prompt: %w", err)
	}
	s.state = stateAwaitingUsername

	line, err := s.reader.ReadLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read username: %w", err)
	}

	s.username = s.normalizeUsername(line)
	s.peer = s.room.Join(s.id, s.username, s.conn.RemoteAddr(), s.writer)
	// The relay owns the write half from here on.
	s.writer = nil
	s.state = stateJoined
	return nil
}

// normalizeUsername keeps the line as sent and only replaces a blank one.
func (s *session) normalizeUsername(line string) string {
	if strings.TrimSpace(line) == "" {
		return "guest-" + s.id.short()
	}
	return line
}

func (s *session) readLoop() error {
	for {
		line, err := s.reader.ReadLine()
		if err != nil {
			return err
		}
		s.room.Broadcast(s.id, NewChat(s.username, line))
	}
}

func (s *session) handleReadError(err error) error {
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case s.relayStopped():
		// The relay or the room already dropped this peer and logged why.
		return nil
	default:
		return fmt.Errorf("read line: %w", err)
	}
}

func (s *session) relayStopped() bool {
	if s.state != stateJoined {
		return false
	}
	out := s.peer.outbox
	return out.evicted.IsSet() || out.dropped.IsSet()
}

func (s *session) cleanupSession() {
	s.cleanup.Do(func() {
		last := s.state
		s.state = stateTerminated
		if last != stateJoined {
			s.room.logger.Debug("session ended before join", "peer", s.id, "remote", s.conn.RemoteAddr(), "state", last.String())
			return
		}

		s.room.Leave(s.peer)
		select {
		case <-s.peer.outbox.Done():
		case <-time.After(s.room.drainTimeout):
		}
	})
}
