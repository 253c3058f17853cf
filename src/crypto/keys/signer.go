package keys

import "crypto/ecdsa"

// Signer signs hashes on behalf of a single account.
type Signer interface {
	Sign(hash []byte) ([]byte, error)
	Address() string
	PublicKey() *ecdsa.PublicKey
}

// KeySigner is a Signer backed by an in-memory private key.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewKeySigner wraps a private key.
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		key:     key,
		address: PublicKeyAddress(&key.PublicKey),
	}
}

// Sign implements Signer.
func (s *KeySigner) Sign(hash []byte) ([]byte, error) {
	return Sign(s.key, hash)
}

// Address implements Signer.
func (s *KeySigner) Address() string {
	return s.address
}

// PublicKey implements Signer.
func (s *KeySigner) PublicKey() *ecdsa.PublicKey {
	return &s.key.PublicKey
}
