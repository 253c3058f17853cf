// Package peers keeps track of the nodes this node is connected to.
//
// A Peer enters the Registry after a successful handshake and leaves it when
// it becomes unreachable or stops answering for longer than the liveness
// timeout. The Registry is the only source of broadcast fan-out: senders take
// a snapshot with List and never hold the registry lock while talking to the
// network.
//
// Seed addresses, from which handshakes are attempted at start-up, come from
// the NODES environment variable ("ip:port,ip:port") and from an optional
// peers.json file in the data directory.
package peers
