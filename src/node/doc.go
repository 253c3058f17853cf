// Package node implements the reactive component of a ledger node.
//
// Node receives messages from the transport, routes them to the validation
// engine and the ledger, and announces what it accepted to the peers in the
// registry. It implements a small state machine:
//
// # Running
//
// The node relays transactions and blocks, and answers Handshakes and
// SyncRequests. On every tick of the control timer a validator checks whether
// it is its turn to propose (validators take turns by height) or whether the
// head has been idle for two block intervals, and if so builds a block from
// the transaction pool, signs it, applies it and announces it. Empty blocks
// are never produced.
//
// # CatchingUp
//
// Entered at start-up and whenever a peer reports a greater height or a block
// arrives whose parent is unknown. The SyncCoordinator asks the best peer for
// the missing blocks with SyncRequests, applies them in height order, and
// tries another peer if the first one fails. When a peer is on another fork
// the request height steps back exponentially until the blocks link to ours;
// the ledger then decides between the forks.
//
// # Peers
//
// Peers are registered after a successful handshake, in either direction. A
// heartbeat repeats the handshake with every peer and seed; peers that cannot
// be reached, or that have not been seen within the liveness timeout, are
// dropped.
package node
