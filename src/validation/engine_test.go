package validation

import (
	"testing"

	"github.com/olachain/ola/src/chain"
	"github.com/olachain/ola/src/crypto/keys"
	"github.com/olachain/ola/src/state"
)

type testEnv struct {
	validator *keys.KeySigner
	alice     *keys.KeySigner
	bob       *keys.KeySigner
	outsider  *keys.KeySigner

	genesis      *chain.Genesis
	engine       *Engine
	genesisBlock *chain.Block
	genesisState *state.State
}

func newSigner(t *testing.T) *keys.KeySigner {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	return keys.NewKeySigner(key)
}

func addr(s keys.Signer) chain.Address {
	return chain.Address(s.Address())
}

func newTestEnv(t *testing.T) *testEnv {
	env := &testEnv{
		validator: newSigner(t),
		alice:     newSigner(t),
		bob:       newSigner(t),
		outsider:  newSigner(t),
	}

	env.genesis = chain.NewDevGenesis(addr(env.validator))
	env.genesis.Alloc[addr(env.alice)] = 1000
	env.engine = NewEngine(env.genesis)
	env.genesisState = state.New(env.genesis.Alloc)

	stateHash, err := env.genesisState.Hash()
	if err != nil {
		t.Fatal(err)
	}
	env.genesisBlock, err = env.genesis.Block(stateHash)
	if err != nil {
		t.Fatal(err)
	}

	return env
}

func (env *testEnv) tx(t *testing.T, from keys.Signer, to chain.Address, amount, fee, nonce uint64) *chain.Transaction {
	tx := chain.NewTransaction(addr(from), to, amount, fee, nonce, nil)
	if err := tx.Sign(from); err != nil {
		t.Fatal(err)
	}
	return tx
}

func (env *testEnv) block(t *testing.T, proposer keys.Signer, txs ...*chain.Transaction) (*chain.Block, *state.State) {
	block, st, err := env.engine.Propose(env.genesisBlock, env.genesisState, addr(proposer), txs, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := block.Sign(proposer); err != nil {
		t.Fatal(err)
	}
	return block, st
}

func TestValidateTransaction(t *testing.T) {
	env := newTestEnv(t)
	bob := addr(env.bob)

	if err := env.engine.ValidateTransaction(env.tx(t, env.alice, bob, 10, 1, 1), env.genesisState); err != nil {
		t.Fatalf("valid transaction rejected: %v", err)
	}

	forged := chain.NewTransaction(addr(env.alice), bob, 10, 1, 1, nil)
	forged.Sign(env.bob)

	unsigned := chain.NewTransaction(addr(env.alice), bob, 10, 1, 1, nil)

	cases := []struct {
		name string
		tx   *chain.Transaction
		want ErrType
	}{
		{"forged", forged, Signature},
		{"unsigned", unsigned, Signature},
		{"nonce gap", env.tx(t, env.alice, bob, 10, 1, 2), Nonce},
		{"replay", env.tx(t, env.alice, bob, 10, 1, 0), Nonce},
		{"overdraft", env.tx(t, env.alice, bob, 1000, 1, 1), Balance},
		{"empty account", env.tx(t, env.bob, addr(env.alice), 1, 0, 1), Balance},
		{"zero amount", env.tx(t, env.alice, bob, 0, 1, 1), Structure},
		{"self transfer", env.tx(t, env.alice, addr(env.alice), 1, 1, 1), Structure},
		{"bad recipient", env.tx(t, env.alice, "bob", 1, 1, 1), Structure},
	}

	for _, c := range cases {
		err := env.engine.ValidateTransaction(c.tx, env.genesisState)
		if !Is(err, c.want) {
			t.Errorf("%s: expected %s error, got %v", c.name, c.want, err)
		}
	}
}

func TestValidateBlock(t *testing.T) {
	env := newTestEnv(t)

	tx := env.tx(t, env.alice, addr(env.bob), 100, 5, 1)
	block, _ := env.block(t, env.validator, tx)

	if len(block.Transactions) != 1 {
		t.Fatalf("proposal should include the transaction")
	}

	next, err := env.engine.ExecuteBlock(block, env.genesisBlock, env.genesisState)
	if err != nil {
		t.Fatalf("valid block rejected: %v", err)
	}

	if next.Get(addr(env.alice)).Balance != 895 || next.Get(addr(env.bob)).Balance != 100 {
		t.Fatalf("wrong balances after block")
	}
	if next.Get(addr(env.validator)).Balance != chain.DefaultDevBalance+5 {
		t.Fatalf("fee not credited to proposer")
	}

	// inputs are untouched
	if env.genesisState.Get(addr(env.alice)).Balance != 1000 {
		t.Fatalf("parent state was mutated")
	}
}

func TestValidateBlockFailures(t *testing.T) {
	env := newTestEnv(t)

	resign := func(b *chain.Block, s keys.Signer) *chain.Block {
		if err := b.Sign(s); err != nil {
			t.Fatal(err)
		}
		return b
	}

	// unauthorised proposer
	outsiderBlock, _ := env.block(t, env.outsider)
	if err := env.engine.ValidateBlock(outsiderBlock, env.genesisBlock, env.genesisState); !Is(err, Proposer) {
		t.Errorf("expected Proposer error, got %v", err)
	}

	// wrong parent
	b, _ := env.block(t, env.validator, env.tx(t, env.alice, addr(env.bob), 1, 0, 1))
	b.Header.ParentHash = chain.GenesisParentHash
	resign(b, env.validator)
	if err := env.engine.ValidateBlock(b, env.genesisBlock, env.genesisState); !Is(err, Linkage) {
		t.Errorf("expected Linkage error, got %v", err)
	}

	// wrong height
	b, _ = env.block(t, env.validator)
	b.Header.Height = 5
	resign(b, env.validator)
	if err := env.engine.ValidateBlock(b, env.genesisBlock, env.genesisState); !Is(err, Linkage) {
		t.Errorf("expected Linkage error, got %v", err)
	}

	// signature does not cover the tampered header
	b, _ = env.block(t, env.validator)
	b.Header.Timestamp++
	if err := env.engine.ValidateBlock(b, env.genesisBlock, env.genesisState); !Is(err, Signature) {
		t.Errorf("expected Signature error, got %v", err)
	}

	// transactions swapped after the root was computed
	b, _ = env.block(t, env.validator, env.tx(t, env.alice, addr(env.bob), 1, 0, 1))
	b.Transactions = []*chain.Transaction{env.tx(t, env.alice, addr(env.bob), 2, 0, 1)}
	if err := env.engine.ValidateBlock(b, env.genesisBlock, env.genesisState); !Is(err, TxRoot) {
		t.Errorf("expected TxRoot error, got %v", err)
	}

	// wrong state hash
	b, _ = env.block(t, env.validator, env.tx(t, env.alice, addr(env.bob), 1, 0, 1))
	b.Header.StateHash = env.genesisBlock.Header.StateHash
	resign(b, env.validator)
	if err := env.engine.ValidateBlock(b, env.genesisBlock, env.genesisState); !Is(err, StateMismatch) {
		t.Errorf("expected StateMismatch error, got %v", err)
	}

	// invalid transaction inside the block
	bad := env.tx(t, env.alice, addr(env.bob), 1, 0, 7)
	b, _ = env.block(t, env.validator)
	b.Transactions = []*chain.Transaction{bad}
	b.Header.TxRoot, _ = chain.TxRoot(b.Transactions)
	resign(b, env.validator)
	if err := env.engine.ValidateBlock(b, env.genesisBlock, env.genesisState); !Is(err, Nonce) {
		t.Errorf("expected Nonce error, got %v", err)
	}
}

func TestProposeOrdersNonces(t *testing.T) {
	env := newTestEnv(t)
	bob := addr(env.bob)

	tx1 := env.tx(t, env.alice, bob, 10, 1, 1)
	tx2 := env.tx(t, env.alice, bob, 10, 9, 2)
	tx3 := env.tx(t, env.alice, bob, 10, 5, 3)
	stale := env.tx(t, env.alice, bob, 10, 50, 9)

	// highest fee first, as a pool would hand them over
	block, st, err := env.engine.Propose(env.genesisBlock, env.genesisState, addr(env.validator), []*chain.Transaction{stale, tx2, tx3, tx1}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	if len(block.Transactions) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(block.Transactions))
	}
	for i, tx := range block.Transactions {
		if tx.Body.Nonce != uint64(i+1) {
			t.Fatalf("transaction %d has nonce %d", i, tx.Body.Nonce)
		}
	}
	if st.Get(addr(env.alice)).Nonce != 3 {
		t.Fatalf("wrong nonce after proposal")
	}

	limited, _, err := env.engine.Propose(env.genesisBlock, env.genesisState, addr(env.validator), []*chain.Transaction{tx2, tx3, tx1}, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited.Transactions) != 2 {
		t.Fatalf("maxTxs not honoured: %d", len(limited.Transactions))
	}
}
