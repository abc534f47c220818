package chat

import (
	"log/slog"
	"sort"
	"time"

	"github.com/ledzpl/linechat/pkg/lineconn"
)

const defaultDrainTimeout = 5 * time.Second

// Room fans messages out to every joined peer.
type Room struct {
	peers  *Registry
	logger *slog.Logger

	outboxSize   int
	drainTimeout time.Duration
}

// RoomOption customises a Room.
type RoomOption func(r *Room)

// WithRegistry shares an existing registry with the room.
func WithRegistry(reg *Registry) RoomOption {
	return func(r *Room) {
		if reg != nil {
			r.peers = reg
		}
	}
}

// WithLogger sets the logger used for room and relay events.
func WithLogger(logger *slog.Logger) RoomOption {
	return func(r *Room) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithOutboxSize sets how many messages may queue for a peer before it is
// considered too slow and dropped.
func WithOutboxSize(n int) RoomOption {
	return func(r *Room) {
		if n > 0 {
			r.outboxSize = n
		}
	}
}

// WithDrainTimeout bounds how long a leaving session waits for its relay to
// flush queued messages.
func WithDrainTimeout(d time.Duration) RoomOption {
	return func(r *Room) {
		if d > 0 {
			r.drainTimeout = d
		}
	}
}

// NewRoom constructs an empty chat room.
func NewRoom(opts ...RoomOption) *Room {
	r := &Room{
		outboxSize:   DefaultOutboxSize,
		drainTimeout: defaultDrainTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.peers == nil {
		r.peers = NewRegistry()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Registry exposes the room's peer registry.
func (r *Room) Registry() *Registry {
	return r.peers
}

// Join registers a peer, starts its relay over w and announces it to everyone
// else. The caller must not use w afterwards and must call Leave when done.
func (r *Room) Join(id PeerID, username, remote string, w lineconn.LineWriter) *Peer {
	peer := newPeer(id, username, remote, r.outboxSize)
	rl := &relay{peer: peer, writer: w, logger: r.logger}
	peer.hangup = rl.drop

	r.peers.Register(peer)
	go rl.run()

	r.logger.Info("peer joined", "peer", id, "username", username, "remote", remote)
	r.Broadcast(id, NewUserJoined(username))
	return peer
}

// Leave deregisters peer, lets its relay flush and announces the departure
// to the remaining peers. Only the first call for a peer has any effect.
func (r *Room) Leave(peer *Peer) {
	r.peers.Remove(peer.ID)
	if !peer.outbox.close() {
		return
	}

	r.logger.Info("peer left", "peer", peer.ID, "username", peer.Username)
	r.Broadcast(peer.ID, NewUserLeft(peer.Username))
}

// Broadcast offers msg to every peer except sender and returns how many
// accepted it. A peer that cannot take the message is removed from the room
// and its connection dropped.
func (r *Room) Broadcast(sender PeerID, msg Message) int {
	type failure struct {
		peer *Peer
		err  error
	}

	var (
		delivered int
		failed    []failure
	)

	r.peers.ForEachExcept(sender, func(p *Peer) {
		if err := p.outbox.Offer(msg); err != nil {
			failed = append(failed, failure{p, err})
			return
		}
		delivered++
	})

	// Shard locks are released by now; pruning takes them again.
	for _, f := range failed {
		r.logger.Warn("failed to deliver message", "peer", f.peer.ID, "username", f.peer.Username, "err", f.err)
		r.prune(f.peer)
	}
	return delivered
}

func (r *Room) prune(p *Peer) {
	if r.peers.removeEntry(p) {
		p.outbox.Evict()
		p.hangUp()
	}
}

// PeerCount reports the number of joined peers.
func (r *Room) PeerCount() int {
	return r.peers.Len()
}

// PeerInfo describes a joined peer.
type PeerInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Remote   string `json:"remote"`
}

// Peers returns the joined peers ordered by username.
func (r *Room) Peers() []PeerInfo {
	snapshot := r.peers.Snapshot()
	infos := make([]PeerInfo, 0, len(snapshot))
	for _, p := range snapshot {
		infos = append(infos, PeerInfo{ID: p.ID.String(), Username: p.Username, Remote: p.Remote})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Username != infos[j].Username {
			return infos[i].Username < infos[j].Username
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}
