package node

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/olachain/ola/src/chain"
	"github.com/olachain/ola/src/common"
	"github.com/olachain/ola/src/crypto/keys"
	"github.com/olachain/ola/src/ledger"
	"github.com/olachain/ola/src/net"
	"github.com/olachain/ola/src/peers"
	ledgerstate "github.com/olachain/ola/src/state"
	"github.com/olachain/ola/src/store"
	"github.com/olachain/ola/src/txpool"
	"github.com/olachain/ola/src/validation"
)

type testNetwork struct {
	genesis    *chain.Genesis
	validators []*ecdsa.PrivateKey
	alice      *keys.KeySigner
	bob        chain.Address
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func newTestNetwork(t *testing.T, nValidators int) *testNetwork {
	tn := &testNetwork{
		alice: keys.NewKeySigner(newKey(t)),
		bob:   chain.Address(keys.NewKeySigner(newKey(t)).Address()),
	}

	tn.genesis = &chain.Genesis{
		ChainID:    "test",
		ForkChoice: chain.ForkChoiceHeight,
		Alloc: map[chain.Address]uint64{
			chain.Address(tn.alice.Address()): 1000000,
		},
	}

	for i := 0; i < nValidators; i++ {
		key := newKey(t)
		tn.validators = append(tn.validators, key)
		tn.genesis.Validators = append(tn.genesis.Validators, chain.Validator{
			Address: chain.Address(keys.NewKeySigner(key).Address()),
			Weight:  1,
		})
	}

	if err := tn.genesis.Validate(); err != nil {
		t.Fatal(err)
	}

	return tn
}

func (tn *testNetwork) newLedger(t *testing.T) *ledger.Ledger {
	l, err := ledger.New(validation.NewEngine(tn.genesis),
		store.NewInmemStore(100),
		100,
		common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Bootstrap(); err != nil {
		t.Fatal(err)
	}
	return l
}

// payment returns a signed transfer from alice to bob.
func (tn *testNetwork) payment(t *testing.T, amount, nonce uint64) *chain.Transaction {
	tx := chain.NewTransaction(chain.Address(tn.alice.Address()), tn.bob, amount, 1, nonce, nil)
	if err := tx.Sign(tn.alice); err != nil {
		t.Fatal(err)
	}
	return tx
}

// extend builds a signed block on parent with the first validator. salt
// makes sibling blocks distinct.
func (tn *testNetwork) extend(t *testing.T, parent *chain.Block, parentState *ledgerstate.State, salt int64, txs ...*chain.Transaction) (*chain.Block, *ledgerstate.State) {
	signer := keys.NewKeySigner(tn.validators[0])
	engine := validation.NewEngine(tn.genesis)

	block, next, err := engine.Propose(parent, parentState, chain.Address(signer.Address()), txs, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	block.Header.Timestamp = parent.Header.Timestamp + 1 + salt
	if err := block.Sign(signer); err != nil {
		t.Fatal(err)
	}
	return block, next
}

// newTestNodes creates one node per key, with transports that can all reach
// each other. Every node after the first uses the first as its seed.
func (tn *testNetwork) newTestNodes(t *testing.T, keys ...*ecdsa.PrivateKey) []*Node {
	transports := make([]*net.InmemTransport, len(keys))
	for i := range keys {
		_, transports[i] = net.NewInmemTransport("")
	}
	for _, a := range transports {
		for _, b := range transports {
			if a != b {
				a.Connect(b.LocalAddr(), b)
			}
		}
	}

	nodes := make([]*Node, len(keys))
	for i, key := range keys {
		var seeds []string
		if i > 0 {
			seeds = []string{transports[0].LocalAddr()}
		}
		nodes[i] = NewNode(TestConfig(t),
			NewValidator(key, "node"),
			tn.newLedger(t),
			txpool.NewPool(0, common.NewTestEntry(t, common.TestLogLevel)),
			peers.NewRegistry(),
			transports[i],
			seeds,
		)
	}

	return nodes
}

func startNode(t *testing.T, n *Node) {
	if err := n.Init(); err != nil {
		t.Fatal(err)
	}
	n.RunAsync()
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
