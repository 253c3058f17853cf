package chain

import (
	"crypto/ecdsa"
	"encoding/hex"
	"strings"

	"github.com/olachain/ola/src/crypto/keys"
)

// Address identifies an account: "0x" followed by 40 lowercase hex
// characters.
type Address string

// AddressFromPublicKey derives the address controlled by pub.
func AddressFromPublicKey(pub *ecdsa.PublicKey) Address {
	return Address(keys.PublicKeyAddress(pub))
}

// ParseAddress normalises s to lowercase and checks that it is well formed.
func ParseAddress(s string) (Address, bool) {
	a := Address(strings.ToLower(strings.TrimSpace(s)))
	return a, a.IsValid()
}

// IsValid reports whether the address is well formed.
func (a Address) IsValid() bool {
	s := string(a)
	if len(s) != 2+2*keys.AddressLength || s[:2] != "0x" {
		return false
	}
	if strings.ToLower(s) != s {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

// String ...
func (a Address) String() string {
	return string(a)
}
