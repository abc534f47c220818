package chat

import (
	"log/slog"

	"github.com/ledzpl/linechat/pkg/lineconn"
)

// relay drains one peer's outbox onto that peer's connection.
type relay struct {
	peer   *Peer
	writer lineconn.LineWriter
	logger *slog.Logger
}

func (r *relay) run() {
	out := r.peer.outbox
	defer close(out.done)

	for {
		select {
		case <-out.evicting:
			r.drop()
			return
		default:
		}

		select {
		case <-out.evicting:
			r.drop()
			return
		case msg := <-out.ch:
			if !r.write(msg) {
				return
			}
		case <-out.closing:
			r.drain()
			return
		}
	}
}

// drain writes what is already queued after a graceful close.
func (r *relay) drain() {
	out := r.peer.outbox
	for {
		select {
		case msg := <-out.ch:
			if !r.write(msg) {
				return
			}
		default:
			return
		}
	}
}

func (r *relay) write(msg Message) bool {
	if err := r.writer.WriteLine(msg.String()); err != nil {
		r.logger.Warn("failed to send message", "peer", r.peer.ID, "username", r.peer.Username, "err", err)
		r.drop()
		return false
	}
	return true
}

// drop closes the connection so the session's pending read returns. It may
// run on a broadcasting goroutine while run is blocked in WriteLine.
func (r *relay) drop() {
	r.peer.outbox.dropped.Set()
	_ = r.writer.Close()
}
