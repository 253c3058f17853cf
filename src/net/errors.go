package net

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrTimeout is returned when a peer does not answer in time.
	ErrTimeout = errors.New("command timed out")
)

// PeerUnreachableError is returned when a peer cannot be dialed, written to or
// read from. The caller is expected to drop the peer.
type PeerUnreachableError struct {
	Addr string
	Err  error
}

func (e *PeerUnreachableError) Error() string {
	return fmt.Sprintf("peer %s unreachable: %v", e.Addr, e.Err)
}

// Cause implements the causer interface of github.com/pkg/errors.
func (e *PeerUnreachableError) Cause() error {
	return e.Err
}

// IsPeerUnreachable reports whether err, or an error it wraps, is a
// *PeerUnreachableError.
func IsPeerUnreachable(err error) bool {
	type causer interface {
		Cause() error
	}

	for err != nil {
		if _, ok := err.(*PeerUnreachableError); ok {
			return true
		}
		c, ok := err.(causer)
		if !ok {
			return false
		}
		err = c.Cause()
	}
	return false
}

// FramingError reports a frame that cannot be delimited in a stream. The
// connection it was read from is unusable.
type FramingError struct {
	Reason string
	Err    error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("framing error: %s: %v", e.Reason, e.Err)
	}
	return "framing error: " + e.Reason
}

// MalformedMessageError reports bytes that do not decode to a valid message.
type MalformedMessageError struct {
	Reason string
	Err    error
}

func (e *MalformedMessageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed message: %s: %v", e.Reason, e.Err)
	}
	return "malformed message: " + e.Reason
}

// RejectedError is returned by Request when the peer answers with a Reject.
type RejectedError struct {
	Addr   string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected by %s: %s", e.Addr, e.Reason)
}
