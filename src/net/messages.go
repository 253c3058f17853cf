package net

import (
	"fmt"
	"strings"

	"github.com/olachain/ola/src/chain"
)

// ProtocolVersion is exchanged in handshakes. Peers with a different major
// version are rejected.
const ProtocolVersion = "1.0"

// MessageType is the tag byte that starts every frame.
type MessageType uint8

const (
	HandshakeMsg MessageType = iota + 1
	TxAnnounceMsg
	BlockAnnounceMsg
	SyncRequestMsg
	SyncResponseMsg
	RejectMsg
)

func (t MessageType) String() string {
	switch t {
	case HandshakeMsg:
		return "Handshake"
	case TxAnnounceMsg:
		return "TxAnnounce"
	case BlockAnnounceMsg:
		return "BlockAnnounce"
	case SyncRequestMsg:
		return "SyncRequest"
	case SyncResponseMsg:
		return "SyncResponse"
	case RejectMsg:
		return "Reject"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// expectsReply reports whether the receiver answers messages of this type on
// the same connection.
func (t MessageType) expectsReply() bool {
	return t == HandshakeMsg || t == SyncRequestMsg
}

// Message is implemented by every wire message.
type Message interface {
	Type() MessageType
}

func newMessage(t MessageType) (Message, bool) {
	switch t {
	case HandshakeMsg:
		return &Handshake{}, true
	case TxAnnounceMsg:
		return &TxAnnounce{}, true
	case BlockAnnounceMsg:
		return &BlockAnnounce{}, true
	case SyncRequestMsg:
		return &SyncRequest{}, true
	case SyncResponseMsg:
		return &SyncResponse{}, true
	case RejectMsg:
		return &Reject{}, true
	default:
		return nil, false
	}
}

// Handshake introduces a node and its chain position. It is sent when
// connecting to a peer and periodically as a heartbeat; the answer is the
// receiver's own Handshake.
type Handshake struct {
	Version    string
	PeerID     string
	ListenAddr string
	Moniker    string
	Height     uint64
	Head       string
}

// Type implements the Message interface.
func (h *Handshake) Type() MessageType { return HandshakeMsg }

// Compatible reports whether the handshake speaks our major protocol version.
func (h *Handshake) Compatible() bool {
	return major(h.Version) == major(ProtocolVersion)
}

func major(v string) string {
	if i := strings.Index(v, "."); i >= 0 {
		return v[:i]
	}
	return v
}

// TxAnnounce gossips a transaction.
type TxAnnounce struct {
	Transaction *chain.Transaction
}

// Type implements the Message interface.
func (m *TxAnnounce) Type() MessageType { return TxAnnounceMsg }

// BlockAnnounce gossips a block.
type BlockAnnounce struct {
	Block *chain.Block
}

// Type implements the Message interface.
func (m *BlockAnnounce) Type() MessageType { return BlockAnnounceMsg }

// SyncRequest asks for up to Limit canonical blocks starting at FromHeight.
type SyncRequest struct {
	FromHeight uint64
	Limit      int
}

// Type implements the Message interface.
func (m *SyncRequest) Type() MessageType { return SyncRequestMsg }

// SyncResponse carries blocks in ascending height order.
type SyncResponse struct {
	Blocks []*chain.Block
}

// Type implements the Message interface.
func (m *SyncResponse) Type() MessageType { return SyncResponseMsg }

// Reject answers a request that could not be served.
type Reject struct {
	Reason string
}

// Type implements the Message interface.
func (m *Reject) Type() MessageType { return RejectMsg }
