package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"

	"github.com/olachain/ola/src/common"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressLength is the number of bytes in an account address.
const AddressLength = 20

// ToPublicKey is a wrapper around elliptic.Unmarshal which calls Curve() to
// determine which elliptic.Curve to use. The argument pub is expected to be the
// uncompressed form of a point on the curve, as returned by FromPublicKey.
func ToPublicKey(pub []byte) *ecdsa.PublicKey {
	if len(pub) == 0 {
		return nil
	}
	x, y := elliptic.Unmarshal(Curve(), pub)
	if x == nil {
		return nil
	}
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}
}

// FromPublicKey is a wrapper around elliptic.Marshal which calls Curve() to
// determine which elliptic.Curve to use. It outputs the point in uncompressed
// form.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(Curve(), pub.X, pub.Y)
}

// PublicKeyHex returns the hexadecimal reprentation of the uncompressed form of
// the public key
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return common.EncodeToString(FromPublicKey(pub))
}

// PublicKeyAddress returns the account address controlled by pub: "0x"
// followed by the lowercase hex of the last 20 bytes of Keccak256(X || Y).
func PublicKeyAddress(pub *ecdsa.PublicKey) string {
	raw := FromPublicKey(pub)
	if raw == nil {
		return ""
	}
	hash := ethcrypto.Keccak256(raw[1:])
	return "0x" + hex.EncodeToString(hash[len(hash)-AddressLength:])
}
