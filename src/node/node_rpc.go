package node

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/olachain/ola/src/ledger"
	"github.com/olachain/ola/src/net"
	"github.com/olachain/ola/src/validation"
	"github.com/sirupsen/logrus"
)

func (n *Node) processRPC(rpc net.RPC) {
	switch cmd := rpc.Command.(type) {
	case *net.Handshake:
		n.processHandshake(rpc, cmd)
	case *net.TxAnnounce:
		n.processTxAnnounce(rpc, cmd)
	case *net.BlockAnnounce:
		n.processBlockAnnounce(rpc, cmd)
	case *net.SyncRequest:
		n.processSyncRequest(rpc, cmd)
	default:
		n.logger.WithFields(logrus.Fields{
			"from": rpc.From,
			"type": rpc.Command.Type().String(),
		}).Debug("Unexpected message")
		rpc.Respond(nil, fmt.Errorf("unexpected message %s", rpc.Command.Type()))
	}
}

func (n *Node) processHandshake(rpc net.RPC, cmd *net.Handshake) {
	if err := n.checkHandshake(cmd); err != nil {
		n.logger.WithFields(logrus.Fields{
			"from":  rpc.From,
			"error": err,
		}).Debug("Refusing handshake")
		rpc.Respond(nil, err)
		return
	}

	// Nodes that do not listen can still ask for our handshake.
	if cmd.ListenAddr != "" {
		p, known := n.registry.Get(cmd.PeerID)
		if !known || p.NetAddr != cmd.ListenAddr {
			n.logger.WithFields(logrus.Fields{
				"peer":    cmd.PeerID,
				"addr":    cmd.ListenAddr,
				"moniker": cmd.Moniker,
			}).Info("Peer connected")
		}

		p.ID = cmd.PeerID
		p.NetAddr = cmd.ListenAddr
		p.Moniker = cmd.Moniker
		p.Version = cmd.Version
		p.Height = cmd.Height
		p.Head = cmd.Head
		p.LastSeen = time.Now()
		n.registry.Register(&p)
	}

	rpc.Respond(n.handshake(), nil)

	if cmd.Height > n.ledger.CurrentHead().Height {
		n.triggerSync()
	}
}

func (n *Node) processTxAnnounce(rpc net.RPC, cmd *net.TxAnnounce) {
	err := n.addTransaction(cmd.Transaction)
	if err != nil {
		n.logger.WithFields(logrus.Fields{
			"from":  rpc.From,
			"error": err,
		}).Debug("Ignoring transaction")
		return
	}

	n.broadcast(cmd, string(cmd.Transaction.Body.From))
}

func (n *Node) processBlockAnnounce(rpc net.RPC, cmd *net.BlockAnnounce) {
	block := cmd.Block
	if block == nil {
		return
	}

	res, err := n.commitBlock(block)

	switch {
	case err == nil:
		n.logger.WithFields(logrus.Fields{
			"from":    rpc.From,
			"height":  block.Height(),
			"outcome": res.Outcome.String(),
		}).Debug("Block announce")
		n.broadcast(cmd, string(block.Header.Proposer))
		n.logStats()
	case err == ledger.ErrKnownBlock:
	case validation.Is(err, validation.Linkage):
		n.logger.WithFields(logrus.Fields{
			"from":   rpc.From,
			"height": block.Height(),
		}).Debug("Orphan block, syncing")
		n.triggerSync()
	default:
		atomic.AddUint64(&n.rejectedBlocks, 1)
		n.logger.WithFields(logrus.Fields{
			"from":   rpc.From,
			"height": block.Height(),
			"error":  err,
		}).Warn("Rejected block")
	}
}

func (n *Node) processSyncRequest(rpc net.RPC, cmd *net.SyncRequest) {
	limit := cmd.Limit
	if limit <= 0 || limit > n.conf.SyncLimit {
		limit = n.conf.SyncLimit
	}

	blocks := n.ledger.CanonicalFrom(cmd.FromHeight, limit)

	n.logger.WithFields(logrus.Fields{
		"from":        rpc.From,
		"from_height": cmd.FromHeight,
		"blocks":      len(blocks),
	}).Debug("SyncRequest")

	rpc.Respond(&net.SyncResponse{Blocks: blocks}, nil)
}
