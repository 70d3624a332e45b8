package peer

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocolViolation marks an out of order or duplicate signal. The
	// signal is discarded and the session carries on.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrTransportFailure marks a transport error the session could not
	// recover from.
	ErrTransportFailure = errors.New("transport failure")
	ErrClosed           = errors.New("peer session closed")
	ErrUnknownPeer      = errors.New("unknown peer")
	ErrChannelNotOpen   = errors.New("control channel not open")
)

type Error struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Peer != "" {
		msg += " " + e.Peer
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", msg, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op, peer string, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}

func WrapError(op, peer string, err error, details string) *Error {
	return &Error{Op: op, Peer: peer, Err: err, Details: details}
}

// transportError wraps a transport error so it matches ErrTransportFailure
// while keeping the cause.
func transportError(op, peer string, err error) error {
	return &Error{Op: op, Peer: peer, Err: errors.Join(ErrTransportFailure, err)}
}
