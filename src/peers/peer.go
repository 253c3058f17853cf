package peers

import (
	"time"
)

// Peer is a remote node that completed a handshake.
type Peer struct {
	// ID is the node's account address.
	ID string
	// NetAddr is the address the node listens on.
	NetAddr   string
	PubKeyHex string
	Moniker   string
	Version   string
	// Height is the last chain height the peer reported.
	Height   uint64
	Head     string
	LastSeen time.Time
}

// NewPeer ...
func NewPeer(id, netAddr string) *Peer {
	return &Peer{
		ID:       id,
		NetAddr:  netAddr,
		LastSeen: time.Now(),
	}
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, netAddr string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.NetAddr != netAddr {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
