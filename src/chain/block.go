package chain

import (
	"fmt"
	"time"

	"github.com/olachain/ola/src/crypto"
	"github.com/olachain/ola/src/crypto/keys"
)

// BlockHeader is the hashed part of a Block. TxRoot commits to the ordered
// transactions and StateHash to the ledger state after applying them.
type BlockHeader struct {
	Height     uint64
	ParentHash string
	Timestamp  int64
	Proposer   Address
	TxRoot     []byte
	StateHash  []byte
}

// Block is an ordered batch of transactions signed by its proposer.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
	Signature    []byte
}

// NewBlock assembles an unsigned block and computes its transaction root.
func NewBlock(height uint64,
	parentHash string,
	proposer Address,
	transactions []*Transaction,
	stateHash []byte,
) (*Block, error) {
	txRoot, err := TxRoot(transactions)
	if err != nil {
		return nil, err
	}

	return &Block{
		Header: BlockHeader{
			Height:     height,
			ParentHash: parentHash,
			Timestamp:  time.Now().UnixNano(),
			Proposer:   proposer,
			TxRoot:     txRoot,
			StateHash:  stateHash,
		},
		Transactions: transactions,
	}, nil
}

// TxRoot computes the merkle root of the transaction hashes.
func TxRoot(transactions []*Transaction) ([]byte, error) {
	hashes := make([][]byte, len(transactions))
	for i, tx := range transactions {
		h, err := tx.Hash()
		if err != nil {
			return nil, err
		}
		hashes[i] = h
	}
	return crypto.SimpleHashFromHashes(hashes), nil
}

// Height ...
func (b *Block) Height() uint64 {
	return b.Header.Height
}

// ParentHash ...
func (b *Block) ParentHash() string {
	return b.Header.ParentHash
}

// Hash returns the SHA256 hash of the header. The signature is not part of
// the hash.
func (b *Block) Hash() ([]byte, error) {
	return canonicalHash(b.Header)
}

// Hex returns the hex representation of the block hash.
func (b *Block) Hex() string {
	hash, err := b.Hash()
	if err != nil {
		return ""
	}
	return HashHex(hash)
}

// Sign signs the header hash with the proposer's key.
func (b *Block) Sign(signer keys.Signer) error {
	if Address(signer.Address()) != b.Header.Proposer {
		return fmt.Errorf("signer %s is not the proposer %s", signer.Address(), b.Header.Proposer)
	}

	hash, err := b.Hash()
	if err != nil {
		return err
	}

	sig, err := signer.Sign(hash)
	if err != nil {
		return err
	}

	b.Signature = sig

	return nil
}

// Verify checks that the block was signed by its proposer.
func (b *Block) Verify() (bool, error) {
	if len(b.Signature) == 0 {
		return false, ErrNotSigned
	}

	hash, err := b.Hash()
	if err != nil {
		return false, err
	}

	addr, err := keys.RecoverAddress(hash, b.Signature)
	if err != nil {
		return false, err
	}

	return Address(addr) == b.Header.Proposer, nil
}

// Marshal returns the canonical JSON encoding of the block.
func (b *Block) Marshal() ([]byte, error) {
	return canonicalMarshal(b)
}

// Unmarshal ...
func (b *Block) Unmarshal(data []byte) error {
	return canonicalUnmarshal(data, b)
}
