package validation

import "fmt"

// ErrType classifies validation failures.
type ErrType uint32

const (
	// Structure means the item is malformed.
	Structure ErrType = iota
	// Signature means a signature is missing or does not match.
	Signature
	// Nonce means a transaction nonce is not the sender's next nonce.
	Nonce
	// Balance means the sender cannot afford amount plus fee.
	Balance
	// Linkage means a block does not extend the block it claims as parent.
	Linkage
	// Proposer means the block proposer is not an authorised validator.
	Proposer
	// TxRoot means the transaction root does not match the transactions.
	TxRoot
	// StateMismatch means the resulting state does not match the header.
	StateMismatch
)

// String ...
func (t ErrType) String() string {
	switch t {
	case Structure:
		return "Structure"
	case Signature:
		return "Signature"
	case Nonce:
		return "Nonce"
	case Balance:
		return "Balance"
	case Linkage:
		return "Linkage"
	case Proposer:
		return "Proposer"
	case TxRoot:
		return "TxRoot"
	case StateMismatch:
		return "StateMismatch"
	default:
		return "Unknown"
	}
}

// Error is returned for any transaction or block that fails validation.
type Error struct {
	Type   ErrType
	Reason string
}

// NewError ...
func NewError(errType ErrType, format string, args ...interface{}) *Error {
	return &Error{
		Type:   errType,
		Reason: fmt.Sprintf(format, args...),
	}
}

// Error ...
func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Type, e.Reason)
}

// Is checks that err, or the cause it wraps, is a validation Error with the
// given type.
func Is(err error, t ErrType) bool {
	verr, ok := Cause(err)
	return ok && verr.Type == t
}

// Cause unwraps err until it finds a validation Error.
func Cause(err error) (*Error, bool) {
	type causer interface {
		Cause() error
	}

	for err != nil {
		if verr, ok := err.(*Error); ok {
			return verr, true
		}
		c, ok := err.(causer)
		if !ok {
			return nil, false
		}
		err = c.Cause()
	}
	return nil, false
}
