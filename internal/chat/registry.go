package chat

import "sync"

const registryShards = 16

// Peer is a joined participant as seen by the registry.
type Peer struct {
	ID       PeerID
	Username string
	Remote   string

	outbox *Outbox
	hangup func()
}

func newPeer(id PeerID, username, remote string, outboxSize int) *Peer {
	return &Peer{
		ID:       id,
		Username: username,
		Remote:   remote,
		outbox:   newOutbox(outboxSize),
	}
}

// hangUp closes the peer's connection. Peers without a relay have nothing to close.
func (p *Peer) hangUp() {
	if p.hangup != nil {
		p.hangup()
	}
}

// Outbox returns the peer's outbound queue.
func (p *Peer) Outbox() *Outbox {
	return p.outbox
}

// Registry is the set of joined peers, sharded by PeerID so that unrelated
// peers never contend on the same lock.
type Registry struct {
	shards [registryShards]registryShard
}

type registryShard struct {
	mu    sync.RWMutex
	peers map[PeerID]*Peer
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].peers = make(map[PeerID]*Peer)
	}
	return r
}

func (r *Registry) shard(id PeerID) *registryShard {
	// The first byte of a random UUID is uniformly distributed.
	return &r.shards[int(id[0])%registryShards]
}

// Register inserts p, replacing any entry with the same ID.
func (r *Registry) Register(p *Peer) {
	s := r.shard(p.ID)
	s.mu.Lock()
	s.peers[p.ID] = p
	s.mu.Unlock()
}

// Remove deletes the entry for id. Removing an absent id is a no-op; the
// result reports whether an entry was deleted.
func (r *Registry) Remove(id PeerID) bool {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.peers[id]; !ok {
		return false
	}
	delete(s.peers, id)
	return true
}

// removeEntry deletes p only if it is still the registered entry for its ID.
func (r *Registry) removeEntry(p *Peer) bool {
	s := r.shard(p.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.peers[p.ID] != p {
		return false
	}
	delete(s.peers, p.ID)
	return true
}

// Get returns the entry for id.
func (r *Registry) Get(id PeerID) (*Peer, bool) {
	s := r.shard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.peers[id]
	return p, ok
}

// ForEachExcept calls f for every entry other than except. Each shard is read
// locked while it is visited, so an entry is never seen after its removal has
// completed. f must not block or call back into the registry.
func (r *Registry) ForEachExcept(except PeerID, f func(p *Peer)) {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for id, p := range s.peers {
			if id == except {
				continue
			}
			f(p)
		}
		s.mu.RUnlock()
	}
}

// Len reports the number of registered peers.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.peers)
		s.mu.RUnlock()
	}
	return n
}

// Snapshot returns a copy of every registered entry.
func (r *Registry) Snapshot() []*Peer {
	var peers []*Peer
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, p := range s.peers {
			peers = append(peers, p)
		}
		s.mu.RUnlock()
	}
	return peers
}
