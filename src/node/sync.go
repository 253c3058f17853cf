package node

import (
	"context"
	"fmt"

	"github.com/olachain/ola/src/chain"
	"github.com/olachain/ola/src/ledger"
	"github.com/olachain/ola/src/net"
	"github.com/olachain/ola/src/peers"
	"github.com/olachain/ola/src/validation"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SyncCoordinator brings the local chain up to date with peers that report a
// greater height.
type SyncCoordinator struct {
	ledger   *ledger.Ledger
	trans    net.Transport
	registry *peers.Registry
	selector PeerSelector
	limit    int
	logger   *logrus.Entry

	// add inserts a block in the ledger. It defaults to Ledger.AddBlock.
	add func(*chain.Block) (*ledger.AddResult, error)
}

// NewSyncCoordinator ...
func NewSyncCoordinator(l *ledger.Ledger,
	trans net.Transport,
	registry *peers.Registry,
	limit int,
	logger *logrus.Entry,
) *SyncCoordinator {
	if limit <= 0 {
		limit = DefaultConfig().SyncLimit
	}
	return &SyncCoordinator{
		ledger:   l,
		trans:    trans,
		registry: registry,
		selector: NewHeightPeerSelector(registry),
		limit:    limit,
		logger:   logger,
		add:      l.AddBlock,
	}
}

// CatchUp syncs from the best peer until no registered peer reports a
// greater height than ours. A peer that fails or times out is skipped in
// favour of the next one; CatchUp returns an error only when every candidate
// failed without advancing the chain.
func (s *SyncCoordinator) CatchUp(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		height := s.ledger.CurrentHead().Height
		candidates := s.selector.Candidates(height)
		if len(candidates) == 0 {
			return nil
		}

		progressed := false
		var lastErr error

		for _, p := range candidates {
			if err := ctx.Err(); err != nil {
				return err
			}

			applied, err := s.SyncFrom(ctx, p)
			if err != nil {
				lastErr = err
				s.selector.UpdateLast(p.NetAddr)

				s.logger.WithFields(logrus.Fields{
					"peer":    p.NetAddr,
					"applied": applied,
					"error":   err,
				}).Warn("Sync failed")

				if net.IsPeerUnreachable(err) {
					s.registry.Unregister(p.ID)
				}
			}

			if applied > 0 {
				progressed = true
				break
			}

			if err == nil {
				// The peer had nothing for us: its reported height is stale.
				s.registry.MarkSeen(p.ID, s.ledger.CurrentHead().Height, "")
			}
		}

		if !progressed {
			return lastErr
		}
	}
}

// SyncFrom requests blocks from a single peer until it has nothing more to
// give. If the first block returned does not link to a block we know, the
// peer is on another fork and the request height is moved back exponentially
// until a common ancestor is found.
func (s *SyncCoordinator) SyncFrom(ctx context.Context, peer *peers.Peer) (int, error) {
	applied := 0
	from := s.ledger.CurrentHead().Height + 1
	step := uint64(1)

	for {
		if err := ctx.Err(); err != nil {
			return applied, err
		}

		blocks, err := s.request(peer, from)
		if err != nil {
			return applied, err
		}
		if len(blocks) == 0 {
			return applied, nil
		}

		n, err := s.ApplySyncResponse(blocks)
		applied += n

		if err != nil {
			if n == 0 && validation.Is(err, validation.Linkage) && from > 1 {
				if step >= from {
					from = 1
				} else {
					from -= step
				}
				step *= 2

				s.logger.WithFields(logrus.Fields{
					"peer": peer.NetAddr,
					"from": from,
				}).Debug("Peer on another fork, stepping back")

				continue
			}
			return applied, err
		}

		last := blocks[len(blocks)-1].Height()
		if len(blocks) < s.limit || last < from {
			return applied, nil
		}
		from = last + 1
	}
}

func (s *SyncCoordinator) request(peer *peers.Peer, from uint64) ([]*chain.Block, error) {
	resp, err := s.trans.Request(peer.NetAddr, &net.SyncRequest{
		FromHeight: from,
		Limit:      s.limit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "requesting blocks from %d", from)
	}

	sr, ok := resp.(*net.SyncResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected answer %s to SyncRequest", resp.Type())
	}

	s.logger.WithFields(logrus.Fields{
		"peer":   peer.NetAddr,
		"from":   from,
		"blocks": len(sr.Blocks),
	}).Debug("SyncResponse")

	return sr.Blocks, nil
}

// ApplySyncResponse adds blocks to the ledger in order. Blocks must have
// consecutive heights. It stops at the first block that is rejected or out of
// sequence and returns the error, keeping the blocks applied before it. Known
// blocks are skipped.
func (s *SyncCoordinator) ApplySyncResponse(blocks []*chain.Block) (int, error) {
	applied := 0
	for i, b := range blocks {
		if b == nil {
			return applied, validation.NewError(validation.Structure, "nil block at position %d", i)
		}
		if i > 0 && b.Height() != blocks[i-1].Height()+1 {
			return applied, validation.NewError(validation.Structure,
				"sync response has block %d after block %d", b.Height(), blocks[i-1].Height())
		}

		_, err := s.add(b)
		if err == ledger.ErrKnownBlock {
			continue
		}
		if err != nil {
			return applied, errors.Wrapf(err, "block %d", b.Height())
		}
		applied++
	}

	return applied, nil
}
