// Package conn implements the connection state machine: the client-side
// Conn and the server-side Server, both built on top of registry, reliable
// and ping. This is the layer a caller actually drives every frame.
package conn

import "errors"

// Kind identifies which variant of Status is populated.
type Kind int

const (
	NotConnected Kind = iota
	Connecting
	Accepted
	Rejected
	ConnectionFailed
	Connected
	Disconnecting
	Disconnected
	Dropped
)

func (k Kind) String() string {
	switch k {
	case NotConnected:
		return "NotConnected"
	case Connecting:
		return "Connecting"
	case Accepted:
		return "Accepted"
	case Rejected:
		return "Rejected"
	case ConnectionFailed:
		return "ConnectionFailed"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	case Disconnected:
		return "Disconnected"
	case Dropped:
		return "Dropped"
	default:
		return "Unknown"
	}
}

// Status is the connection status tagged variant. Exactly the fields
// relevant to Kind are meaningful; the rest are zero.
type Status[A, R, D any] struct {
	Kind Kind

	AcceptMsg     A
	RejectMsg     R
	DisconnectMsg D
	Err           error

	// DisconnectAck is the AckNum of the outbound Disconnect message, set
	// when Kind is Disconnecting; NotConnected is reached once that
	// AckNum is observed retired.
	DisconnectAck uint16
}

// ErrInvalidState is returned when an operation is called from a status
// that does not permit it.
var ErrInvalidState = errors.New("conn: invalid state")
