// Package net implements the wire protocol and the transports used by nodes
// to talk to each other.
//
// Messages (Handshake, TxAnnounce, BlockAnnounce, SyncRequest, SyncResponse
// and Reject) are framed as a tag byte, a 4 byte big-endian payload length and
// a msgpack payload. Encode and Decode work on single frames; ReadMessage and
// WriteMessage work on streams.
//
// There are two implementations of the Transport interface:
//
// - TCP: a NetworkTransport over plain TCP, bound to NODE_IP:NODE_PORT
//
// - Inmem: in-memory transport used only for testing. It still passes every
// message through the codec.
//
// Received messages are delivered on the channel returned by Consumer. The
// consumer answers Handshakes and SyncRequests through RPC.Respond; an error
// is sent back to the requester as a Reject.
package net
