package node

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/olachain/ola/src/peers"
)

// PeerSelector chooses the peers to sync from
type PeerSelector interface {
	Candidates(height uint64) []*peers.Peer
	UpdateLast(netAddr string)
}

// HeightPeerSelector orders the peers that are ahead of us by the height they
// reported, best first. Peers at the same height are shuffled, and the last
// peer that failed us is tried last.
type HeightPeerSelector struct {
	registry *peers.Registry

	lock sync.Mutex
	last string
}

// NewHeightPeerSelector ...
func NewHeightPeerSelector(registry *peers.Registry) *HeightPeerSelector {
	return &HeightPeerSelector{
		registry: registry,
	}
}

// Candidates returns the peers that reported a height greater than height
func (ps *HeightPeerSelector) Candidates(height uint64) []*peers.Peer {
	var ahead []*peers.Peer
	for _, p := range ps.registry.List() {
		if p.Height > height {
			ahead = append(ahead, p)
		}
	}

	rand.Shuffle(len(ahead), func(i, j int) {
		ahead[i], ahead[j] = ahead[j], ahead[i]
	})
	sort.SliceStable(ahead, func(i, j int) bool {
		return ahead[i].Height > ahead[j].Height
	})

	ps.lock.Lock()
	last := ps.last
	ps.lock.Unlock()

	if len(ahead) > 1 && last != "" {
		if i, others := peers.ExcludePeer(ahead, last); i >= 0 {
			ahead = append(others, ahead[i])
		}
	}

	return ahead
}

// UpdateLast records the peer that last failed a sync
func (ps *HeightPeerSelector) UpdateLast(netAddr string) {
	ps.lock.Lock()
	defer ps.lock.Unlock()
	ps.last = netAddr
}
