package node

import (
	"crypto/ecdsa"

	"github.com/olachain/ola/src/chain"
	"github.com/olachain/ola/src/crypto/keys"
)

// Validator struct holds information about the validator for a node
type Validator struct {
	Key     *ecdsa.PrivateKey
	Moniker string

	signer  *keys.KeySigner
	address chain.Address
	pubHex  string
}

// NewValidator is a factory method for a Validator
func NewValidator(key *ecdsa.PrivateKey, moniker string) *Validator {
	signer := keys.NewKeySigner(key)
	return &Validator{
		Key:     key,
		Moniker: moniker,
		signer:  signer,
		address: chain.Address(signer.Address()),
	}
}

// Address returns the account address of the validator. It is also the
// node's peer ID.
func (v *Validator) Address() chain.Address {
	return v.address
}

// Signer returns the signer used for blocks produced by this node.
func (v *Validator) Signer() keys.Signer {
	return v.signer
}

// PublicKeyHex returns the validator's public key as a hex string
func (v *Validator) PublicKeyHex() string {
	if len(v.pubHex) == 0 {
		v.pubHex = keys.PublicKeyHex(&v.Key.PublicKey)
	}
	return v.pubHex
}
