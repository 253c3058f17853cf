package ledger_test

import (
	"github.com/olachain/ola/src/chain"
	"github.com/olachain/ola/src/crypto/keys"
	"github.com/olachain/ola/src/state"
	"github.com/olachain/ola/src/validation"

	. "github.com/onsi/gomega"
)

// chainBuilder produces valid signed blocks on top of any block it has built
// before, so tests can grow competing forks.
type chainBuilder struct {
	validators []*keys.KeySigner
	alice      *keys.KeySigner
	bob        *keys.KeySigner
	genesis    *chain.Genesis
	engine     *validation.Engine
	states     map[string]*state.State
	nonces     map[string]uint64
}

func newSigner() *keys.KeySigner {
	key, err := keys.GenerateECDSAKey()
	Expect(err).ShouldNot(HaveOccurred())
	return keys.NewKeySigner(key)
}

func address(s keys.Signer) chain.Address {
	return chain.Address(s.Address())
}

func newChainBuilder(forkChoice string, weights ...uint64) *chainBuilder {
	b := &chainBuilder{
		alice:  newSigner(),
		bob:    newSigner(),
		states: make(map[string]*state.State),
		nonces: make(map[string]uint64),
	}

	b.genesis = &chain.Genesis{
		ChainID:    "test",
		ForkChoice: forkChoice,
		Alloc:      map[chain.Address]uint64{address(b.alice): 1000},
	}
	for _, w := range weights {
		v := newSigner()
		b.validators = append(b.validators, v)
		b.genesis.Validators = append(b.genesis.Validators, chain.Validator{Address: address(v), Weight: w})
	}
	Expect(b.genesis.Validate()).To(Succeed())

	b.engine = validation.NewEngine(b.genesis)

	genesisState := state.New(b.genesis.Alloc)
	stateHash, err := genesisState.Hash()
	Expect(err).ShouldNot(HaveOccurred())
	genesisBlock, err := b.genesis.Block(stateHash)
	Expect(err).ShouldNot(HaveOccurred())
	b.states[genesisBlock.Hex()] = genesisState

	return b
}

// transfer creates a signed payment from alice to bob with the next nonce on
// the branch ending at parent.
func (b *chainBuilder) transfer(parent *chain.Block, amount uint64) *chain.Transaction {
	nonce := b.states[parent.Hex()].Get(address(b.alice)).Nonce + 1
	tx := chain.NewTransaction(address(b.alice), address(b.bob), amount, 1, nonce, nil)
	Expect(tx.Sign(b.alice)).To(Succeed())
	return tx
}

// extend builds a block on parent. salt makes sibling blocks distinct.
func (b *chainBuilder) extend(parent *chain.Block, proposer int, salt int64, txs ...*chain.Transaction) *chain.Block {
	parentState, ok := b.states[parent.Hex()]
	Expect(ok).To(BeTrue(), "parent was not built by this builder")

	v := b.validators[proposer]
	block, next, err := b.engine.Propose(parent, parentState, address(v), txs, 0, 0)
	Expect(err).ShouldNot(HaveOccurred())
	Expect(block.Transactions).To(HaveLen(len(txs)))

	block.Header.Timestamp = parent.Header.Timestamp + 1 + salt
	Expect(block.Sign(v)).To(Succeed())

	b.states[block.Hex()] = next
	return block
}

// branch builds n blocks on top of parent.
func (b *chainBuilder) branch(parent *chain.Block, n int, proposer int, salt int64) []*chain.Block {
	res := []*chain.Block{}
	for i := 0; i < n; i++ {
		parent = b.extend(parent, proposer, salt)
		res = append(res, parent)
	}
	return res
}

func (b *chainBuilder) stateOf(block *chain.Block) *state.State {
	return b.states[block.Hex()]
}
