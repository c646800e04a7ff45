package peer

import (
	"errors"
	"fmt"
)

// HandshakeState tracks the progress of the version handshake.
type HandshakeState uint32

const (
	// StateConnected means the TCP connection is up and nothing has been
	// sent yet.
	StateConnected HandshakeState = iota

	// StateVersionSent means our version message went out and we are
	// waiting on the peer.
	StateVersionSent

	// StateHandshakeComplete means our verack went out and the session
	// may start dispatching messages.
	StateHandshakeComplete

	// StateFailed is terminal. The connection must be dropped.
	StateFailed
)

// String returns a human readable name for the state.
func (s HandshakeState) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateVersionSent:
		return "VersionSent"
	case StateHandshakeComplete:
		return "HandshakeComplete"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("HandshakeState(%d)", uint32(s))
	}
}

var (
	// ErrConnection is returned when the connection to the peer cannot be
	// established or is lost. It is always fatal to the session.
	ErrConnection = errors.New("peer connection error")

	// ErrHandshakeFailed is matched by every handshake error.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrHandshakeIncomplete is returned by Run when the handshake has not
	// completed.
	ErrHandshakeIncomplete = errors.New("handshake not complete")

	// ErrUnexpectedHandshakeMsg is returned in strict mode when the peer
	// answers our version with something else.
	ErrUnexpectedHandshakeMsg = errors.New("unexpected handshake message")

	// ErrNotConnected is returned when an operation needs a connection
	// that has not been made yet.
	ErrNotConnected = errors.New("not connected")
)

// HandshakeError describes a failed handshake.
type HandshakeError struct {
	// State is the state the handshake was in when it failed.
	State HandshakeState

	// Err is the underlying cause.
	Err error
}

// Error returns the error string.
func (e *HandshakeError) Error() string {
	return fmt.Sprintf("%v in state %v: %v", ErrHandshakeFailed, e.State,
		e.Err)
}

// Unwrap returns the underlying cause.
func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// Is makes every HandshakeError match ErrHandshakeFailed.
func (e *HandshakeError) Is(target error) bool {
	return target == ErrHandshakeFailed
}
