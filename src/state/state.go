// Package state holds account balances and nonces.
//
// A State is mutated only while it is private to its creator. Once it has been
// handed to the ledger it is treated as immutable, and any further change goes
// through Copy first.
package state

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/olachain/ola/src/chain"
	"github.com/olachain/ola/src/crypto"
	"github.com/ugorji/go/codec"
)

// Account is the balance and the nonce of the last transaction sent by an
// address.
type Account struct {
	Balance uint64
	Nonce   uint64
}

// State maps addresses to accounts. Missing accounts are empty.
type State struct {
	accounts map[chain.Address]Account
}

// New creates a State from initial balances.
func New(alloc map[chain.Address]uint64) *State {
	s := &State{accounts: make(map[chain.Address]Account, len(alloc))}
	for a, b := range alloc {
		if b > 0 {
			s.accounts[a] = Account{Balance: b}
		}
	}
	return s
}

// FromAccounts creates a State from a full account map, as restored from a
// store.
func FromAccounts(accounts map[chain.Address]Account) *State {
	s := &State{accounts: make(map[chain.Address]Account, len(accounts))}
	for a, acc := range accounts {
		s.accounts[a] = acc
	}
	return s
}

// Copy returns an independent copy.
func (s *State) Copy() *State {
	return FromAccounts(s.accounts)
}

// Get returns the account at addr.
func (s *State) Get(addr chain.Address) Account {
	return s.accounts[addr]
}

// Len returns the number of non-empty accounts.
func (s *State) Len() int {
	return len(s.accounts)
}

// Accounts returns a copy of the account map.
func (s *State) Accounts() map[chain.Address]Account {
	res := make(map[chain.Address]Account, len(s.accounts))
	for a, acc := range s.accounts {
		res[a] = acc
	}
	return res
}

// ApplyTransaction moves Amount from sender to recipient, credits Fee to the
// proposer and sets the sender's nonce. It only guards against arithmetic
// errors; semantic checks belong to the validation engine. The state is left
// untouched when an error is returned.
func (s *State) ApplyTransaction(tx *chain.Transaction, proposer chain.Address) error {
	cost, ok := tx.Cost()
	if !ok {
		return fmt.Errorf("amount plus fee overflows")
	}

	updates := make(map[chain.Address]Account, 3)
	get := func(addr chain.Address) Account {
		if acc, ok := updates[addr]; ok {
			return acc
		}
		return s.accounts[addr]
	}
	credit := func(addr chain.Address, amount uint64) error {
		acc := get(addr)
		if acc.Balance+amount < acc.Balance {
			return fmt.Errorf("balance of %s overflows", addr)
		}
		acc.Balance += amount
		updates[addr] = acc
		return nil
	}

	from := get(tx.Body.From)
	if from.Balance < cost {
		return fmt.Errorf("balance %d of %s is less than %d", from.Balance, tx.Body.From, cost)
	}
	from.Balance -= cost
	from.Nonce = tx.Body.Nonce
	updates[tx.Body.From] = from

	if err := credit(tx.Body.To, tx.Body.Amount); err != nil {
		return err
	}

	if tx.Body.Fee > 0 {
		if err := credit(proposer, tx.Body.Fee); err != nil {
			return err
		}
	}

	for addr, acc := range updates {
		s.accounts[addr] = acc
	}

	return nil
}

type accountEntry struct {
	Address chain.Address
	Balance uint64
	Nonce   uint64
}

// Hash returns the SHA256 hash of the canonical encoding of the accounts,
// sorted by address.
func (s *State) Hash() ([]byte, error) {
	entries := make([]accountEntry, 0, len(s.accounts))
	for a, acc := range s.accounts {
		entries = append(entries, accountEntry{a, acc.Balance, acc.Nonce})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Address < entries[j].Address
	})

	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(entries); err != nil {
		return nil, err
	}

	return crypto.SHA256(b.Bytes()), nil
}
