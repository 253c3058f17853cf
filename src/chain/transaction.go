package chain

import (
	"errors"
	"time"

	"github.com/olachain/ola/src/crypto/keys"
)

// ErrNotSigned is returned when verifying a transaction or block that carries
// no signature.
var ErrNotSigned = errors.New("not signed")

// TransactionBody is the signed part of a Transaction.
type TransactionBody struct {
	From      Address
	To        Address
	Amount    uint64
	Fee       uint64
	Nonce     uint64
	Timestamp int64
	Payload   []byte
}

// normalised returns a copy in which an empty payload is always nil, so the
// hash does not depend on how a decoder chose to represent it.
func (b TransactionBody) normalised() TransactionBody {
	if len(b.Payload) == 0 {
		b.Payload = nil
	}
	return b
}

// Transaction transfers Amount from From to To and pays Fee to the proposer
// of the block that includes it.
type Transaction struct {
	Body      TransactionBody
	Signature []byte
}

// NewTransaction creates an unsigned transaction timestamped now.
func NewTransaction(from, to Address, amount, fee, nonce uint64, payload []byte) *Transaction {
	return &Transaction{
		Body: TransactionBody{
			From:      from,
			To:        to,
			Amount:    amount,
			Fee:       fee,
			Nonce:     nonce,
			Timestamp: time.Now().UnixNano(),
			Payload:   payload,
		},
	}
}

// Hash returns the SHA256 hash of the canonical encoding of the body.
func (t *Transaction) Hash() ([]byte, error) {
	return canonicalHash(t.Body.normalised())
}

// Hex returns the hex representation of the hash, or an empty string if the
// transaction cannot be encoded.
func (t *Transaction) Hex() string {
	hash, err := t.Hash()
	if err != nil {
		return ""
	}
	return HashHex(hash)
}

// Sign signs the transaction hash.
func (t *Transaction) Sign(signer keys.Signer) error {
	hash, err := t.Hash()
	if err != nil {
		return err
	}

	sig, err := signer.Sign(hash)
	if err != nil {
		return err
	}

	t.Signature = sig

	return nil
}

// Signer recovers the address that signed the transaction.
func (t *Transaction) Signer() (Address, error) {
	if len(t.Signature) == 0 {
		return "", ErrNotSigned
	}

	hash, err := t.Hash()
	if err != nil {
		return "", err
	}

	addr, err := keys.RecoverAddress(hash, t.Signature)
	if err != nil {
		return "", err
	}

	return Address(addr), nil
}

// Verify checks that the transaction was signed by the From account.
func (t *Transaction) Verify() (bool, error) {
	signer, err := t.Signer()
	if err != nil {
		return false, err
	}
	return signer == t.Body.From, nil
}

// Cost is the total debited from the sender. ok is false on overflow.
func (t *Transaction) Cost() (cost uint64, ok bool) {
	cost = t.Body.Amount + t.Body.Fee
	return cost, cost >= t.Body.Amount
}

// Marshal returns the canonical JSON encoding of the transaction.
func (t *Transaction) Marshal() ([]byte, error) {
	return canonicalMarshal(t)
}

// Unmarshal ...
func (t *Transaction) Unmarshal(data []byte) error {
	return canonicalUnmarshal(data, t)
}

// Size is the length of the canonical encoding, used to bound blocks.
func (t *Transaction) Size() int {
	b, err := t.Marshal()
	if err != nil {
		return 0
	}
	return len(b)
}
