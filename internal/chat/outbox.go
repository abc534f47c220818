package chat

import (
	"errors"

	"github.com/tevino/abool"
)

// DefaultOutboxSize is the number of messages buffered per peer.
const DefaultOutboxSize = 128

var (
	// ErrOutboxFull means the peer is not draining its messages fast enough.
	ErrOutboxFull = errors.New("chat: outbox full")
	// ErrPeerGone means the peer's relay has stopped or its outbox was closed.
	ErrPeerGone = errors.New("chat: peer gone")
)

// Outbox is the bounded queue of messages waiting to be written to one peer.
// Many goroutines may Offer; exactly one relay consumes.
type Outbox struct {
	ch chan Message

	closed  *abool.AtomicBool
	evicted *abool.AtomicBool
	// dropped is set before the relay closes the connection.
	dropped *abool.AtomicBool

	closing  chan struct{}
	evicting chan struct{}
	done     chan struct{}
}

func newOutbox(size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		ch:       make(chan Message, size),
		closed:   abool.New(),
		evicted:  abool.New(),
		dropped:  abool.New(),
		closing:  make(chan struct{}),
		evicting: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Offer enqueues msg without blocking.
func (o *Outbox) Offer(msg Message) error {
	if o.closed.IsSet() || o.evicted.IsSet() || o.dropped.IsSet() {
		return ErrPeerGone
	}

	select {
	case <-o.done:
		return ErrPeerGone
	default:
	}

	select {
	case o.ch <- msg:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Close asks the relay to write whatever is queued and stop.
func (o *Outbox) Close() {
	o.close()
}

// close reports whether this call was the one that closed the outbox.
func (o *Outbox) close() bool {
	if !o.closed.SetToIf(false, true) {
		return false
	}
	close(o.closing)
	return true
}

// Evict asks the relay to stop without draining. Room.prune pairs it with
// Peer.hangUp so a relay blocked in a write is released at once.
func (o *Outbox) Evict() {
	if o.evicted.SetToIf(false, true) {
		close(o.evicting)
	}
}

// Done is closed once the relay has exited.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

// Len reports the number of queued messages.
func (o *Outbox) Len() int {
	return len(o.ch)
}
