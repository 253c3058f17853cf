package keys

import (
	"crypto/ecdsa"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of a recoverable signature: R || S || V.
const SignatureLength = 65

// Sign produces a recoverable signature of a 32-byte hash.
func Sign(priv *ecdsa.PrivateKey, hash []byte) ([]byte, error) {
	return ethcrypto.Sign(hash, priv)
}

// RecoverPublicKey returns the public key that produced sig over hash.
func RecoverPublicKey(hash []byte, sig []byte) (*ecdsa.PublicKey, error) {
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("invalid signature length %d, need %d", len(sig), SignatureLength)
	}
	pub, err := ethcrypto.SigToPub(hash, sig)
	if err != nil {
		return nil, err
	}
	// Re-express the point on our own curve implementation.
	return &ecdsa.PublicKey{Curve: Curve(), X: pub.X, Y: pub.Y}, nil
}

// RecoverAddress returns the address of the account that produced sig over
// hash.
func RecoverAddress(hash []byte, sig []byte) (string, error) {
	pub, err := RecoverPublicKey(hash, sig)
	if err != nil {
		return "", err
	}
	return PublicKeyAddress(pub), nil
}

// Verify verifies that sig is a valid signature of hash by the owner of the
// private key associated with pub.
func Verify(pub *ecdsa.PublicKey, hash []byte, sig []byte) bool {
	if len(sig) != SignatureLength {
		return false
	}
	return ethcrypto.VerifySignature(FromPublicKey(pub), hash, sig[:64])
}
