package chain

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/olachain/ola/src/common"
)

// Fork-choice rules.
const (
	// ForkChoiceHeight prefers the chain with the greatest height.
	ForkChoiceHeight = "height"
	// ForkChoiceWeight prefers the chain with the greatest cumulative weight
	// of its proposers.
	ForkChoiceWeight = "weight"
)

// GenesisParentHash is the parent reference carried by the genesis block.
var GenesisParentHash = common.EncodeToString(make([]byte, 32))

// DefaultDevBalance is allocated to the single validator of a development
// genesis.
const DefaultDevBalance uint64 = 1000000000

// Validator is an account authorised to propose blocks.
type Validator struct {
	Address Address `json:"address"`
	Weight  uint64  `json:"weight"`
}

// Genesis is the document every node of a network starts from. It fixes the
// initial balances, the validator set, and the fork-choice rule.
type Genesis struct {
	ChainID    string             `json:"chain_id"`
	Timestamp  int64              `json:"timestamp"`
	ForkChoice string             `json:"fork_choice"`
	Alloc      map[Address]uint64 `json:"alloc"`
	Validators []Validator        `json:"validators"`
}

// NewDevGenesis returns a genesis with a single validator who also owns the
// whole supply.
func NewDevGenesis(validator Address) *Genesis {
	return &Genesis{
		ChainID:    "ola-dev",
		ForkChoice: ForkChoiceHeight,
		Alloc: map[Address]uint64{
			validator: DefaultDevBalance,
		},
		Validators: []Validator{
			{Address: validator, Weight: 1},
		},
	}
}

// LoadGenesis reads a genesis document from a JSON file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	genesis := new(Genesis)
	if err := canonicalUnmarshal(data, genesis); err != nil {
		return nil, fmt.Errorf("parsing genesis file %s: %v", path, err)
	}

	genesis.normalise()

	if err := genesis.Validate(); err != nil {
		return nil, err
	}

	return genesis, nil
}

// WriteFile writes the genesis document as JSON.
func (g *Genesis) WriteFile(path string) error {
	data, err := canonicalMarshal(g)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	return ioutil.WriteFile(path, data, 0644)
}

func (g *Genesis) normalise() {
	if g.ForkChoice == "" {
		g.ForkChoice = ForkChoiceHeight
	}

	alloc := make(map[Address]uint64, len(g.Alloc))
	for a, b := range g.Alloc {
		alloc[Address(strings.ToLower(string(a)))] = b
	}
	g.Alloc = alloc

	for i := range g.Validators {
		g.Validators[i].Address = Address(strings.ToLower(string(g.Validators[i].Address)))
	}
}

// Validate checks that the genesis document is usable.
func (g *Genesis) Validate() error {
	switch g.ForkChoice {
	case ForkChoiceHeight, ForkChoiceWeight:
	default:
		return fmt.Errorf("unknown fork choice rule %q", g.ForkChoice)
	}

	if len(g.Validators) == 0 {
		return fmt.Errorf("genesis has no validators")
	}

	seen := make(map[Address]bool)
	for _, v := range g.Validators {
		if !v.Address.IsValid() {
			return fmt.Errorf("invalid validator address %q", v.Address)
		}
		if v.Weight == 0 {
			return fmt.Errorf("validator %s has zero weight", v.Address)
		}
		if seen[v.Address] {
			return fmt.Errorf("duplicate validator %s", v.Address)
		}
		seen[v.Address] = true
	}

	for a := range g.Alloc {
		if !a.IsValid() {
			return fmt.Errorf("invalid alloc address %q", a)
		}
	}

	return nil
}

// Weight returns the weight of a validator, and false if addr is not one.
func (g *Genesis) Weight(addr Address) (uint64, bool) {
	for _, v := range g.Validators {
		if v.Address == addr {
			return v.Weight, true
		}
	}
	return 0, false
}

// ProposerAt returns the validator whose turn it is to propose the block at
// the given height.
func (g *Genesis) ProposerAt(height uint64) Address {
	return g.Validators[height%uint64(len(g.Validators))].Address
}

// Hash returns the hash of the canonical encoding of the genesis document.
func (g *Genesis) Hash() ([]byte, error) {
	return canonicalHash(g)
}

// Block builds the genesis block. stateHash is the hash of the state built
// from Alloc. The genesis block commits to the whole document through its
// TxRoot, so networks with different genesis documents never share a block.
func (g *Genesis) Block(stateHash []byte) (*Block, error) {
	docHash, err := g.Hash()
	if err != nil {
		return nil, err
	}

	return &Block{
		Header: BlockHeader{
			Height:     0,
			ParentHash: GenesisParentHash,
			Timestamp:  g.Timestamp,
			TxRoot:     docHash,
			StateHash:  stateHash,
		},
	}, nil
}
