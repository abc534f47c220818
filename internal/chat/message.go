package chat

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Message is one of UserJoined, UserLeft or Chat. Values are immutable and
// may be delivered to many peers at once.
type Message interface {
	// String renders the message as a single wire line.
	String() string
	message()
}

// UserJoined announces a new peer.
type UserJoined struct {
	Text string
}

// UserLeft announces a departed peer.
type UserLeft struct {
	Text string
}

// Chat carries one line from a peer.
type Chat struct {
	Sender  string
	Content string
}

// NewUserJoined builds the announcement for username joining.
func NewUserJoined(username string) UserJoined {
	return UserJoined{Text: fmt.Sprintf("%s has joined the chat", username)}
}

// NewUserLeft builds the announcement for username leaving.
func NewUserLeft(username string) UserLeft {
	return UserLeft{Text: fmt.Sprintf("%s has left the chat", username)}
}

// NewChat wraps one line sent by sender.
func NewChat(sender, content string) Chat {
	return Chat{Sender: sender, Content: content}
}

func (m UserJoined) String() string { return m.Text }
func (m UserLeft) String() string { return m.Text }
func (m Chat) String() string { return m.Sender + " " + m.Content }

func (UserJoined) message() {}
func (UserLeft) message() {}
func (Chat) message() {}

// PeerID identifies one accepted connection for as long as it lives.
type PeerID uuid.UUID

// NewPeerID returns a random identifier.
func NewPeerID() PeerID {
	return PeerID(uuid.New())
}

func (id PeerID) String() string {
	return uuid.UUID(id).String()
}

func (id PeerID) LogValue() slog.Value {
	return slog.StringValue(id.String())
}

func (id PeerID) short() string {
	return id.String()[:8]
}
