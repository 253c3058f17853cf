package chain

import (
	"bytes"

	"github.com/olachain/ola/src/common"
	"github.com/olachain/ola/src/crypto"
	"github.com/ugorji/go/codec"
)

// canonicalHandle produces the deterministic JSON used for hashing and
// storage. Handles are safe for concurrent use once configured.
var canonicalHandle = func() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}()

func canonicalMarshal(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, canonicalHandle)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func canonicalUnmarshal(data []byte, v interface{}) error {
	b := bytes.NewBuffer(data)
	dec := codec.NewDecoder(b, canonicalHandle)

	return dec.Decode(v)
}

func canonicalHash(v interface{}) ([]byte, error) {
	data, err := canonicalMarshal(v)
	if err != nil {
		return nil, err
	}
	return crypto.SHA256(data), nil
}

// HashHex renders a hash the way block and transaction hashes are displayed.
func HashHex(hash []byte) string {
	return common.EncodeToString(hash)
}
