package peers

import (
	"sort"
	"sync"
	"time"
)

// Registry is the set of live peers, indexed by ID. It is safe for concurrent
// use.
type Registry struct {
	sync.RWMutex
	byID map[string]*Peer
}

// NewRegistry ...
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]*Peer),
	}
}

// Register adds a peer, or refreshes it if a peer with the same ID is already
// registered. It reports whether the peer is new.
func (r *Registry) Register(peer *Peer) bool {
	r.Lock()
	defer r.Unlock()

	p := *peer
	if p.LastSeen.IsZero() {
		p.LastSeen = time.Now()
	}

	_, ok := r.byID[p.ID]
	r.byID[p.ID] = &p
	return !ok
}

// Unregister removes a peer. It reports whether the peer was registered.
func (r *Registry) Unregister(id string) bool {
	r.Lock()
	defer r.Unlock()

	_, ok := r.byID[id]
	delete(r.byID, id)
	return ok
}

// Get returns a copy of a registered peer.
func (r *Registry) Get(id string) (Peer, bool) {
	r.RLock()
	defer r.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// ByNetAddr returns a copy of the peer listening on netAddr.
func (r *Registry) ByNetAddr(netAddr string) (Peer, bool) {
	r.RLock()
	defer r.RUnlock()

	for _, p := range r.byID {
		if p.NetAddr == netAddr {
			return *p, true
		}
	}
	return Peer{}, false
}

// MarkSeen refreshes the liveness timestamp of a peer, and its reported
// chain position when height is greater than zero.
func (r *Registry) MarkSeen(id string, height uint64, head string) bool {
	r.Lock()
	defer r.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return false
	}

	c := *p
	c.LastSeen = time.Now()
	if height > 0 {
		c.Height = height
		c.Head = head
	}
	r.byID[id] = &c

	return true
}

// List returns a snapshot of the registered peers, sorted by ID. Later
// changes to the registry do not affect the snapshot.
func (r *Registry) List() []*Peer {
	r.RLock()
	res := make([]*Peer, 0, len(r.byID))
	for _, p := range r.byID {
		c := *p
		res = append(res, &c)
	}
	r.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		return res[i].ID < res[j].ID
	})

	return res
}

// Len ...
func (r *Registry) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.byID)
}

// EvictStale removes the peers that have not been seen since now-timeout and
// returns them.
func (r *Registry) EvictStale(now time.Time, timeout time.Duration) []*Peer {
	r.Lock()
	defer r.Unlock()

	var evicted []*Peer
	for id, p := range r.byID {
		if now.Sub(p.LastSeen) > timeout {
			evicted = append(evicted, p)
			delete(r.byID, id)
		}
	}
	return evicted
}
