package net

import (
	"net"
	"time"
)

// StreamLayer supplies the connections of a NetworkTransport: it accepts the
// connections of remote peers and dials theirs.
type StreamLayer interface {
	net.Listener

	// Dial opens a connection to the listen address of a peer. A peer that
	// cannot be reached yields a *PeerUnreachableError.
	Dial(address string, timeout time.Duration) (net.Conn, error)

	// AdvertiseAddr returns the address other nodes should dial to reach us.
	// It is the address handshakes carry and the one peers.json records.
	AdvertiseAddr() string
}
