// Package transport defines the external datagram-transport contract the
// reliability engine is built against, plus a concrete UDP implementation
// and an in-process loopback double for tests.
//
// The engine itself never constructs a Transport; callers hand one in,
// matching spec's control/data flow: the registry serializes, reliable
// saves, and only then does the already-framed datagram reach Transport.
package transport

import "errors"

// MaxSafePayload is the largest payload guaranteed not to fragment at the
// IP layer on a typical path.
const MaxSafePayload = 508

// MaxPayload is the largest payload a single UDP datagram can carry.
const MaxPayload = 65507

// ErrWouldBlock is returned by Recv/RecvFrom when no datagram is queued.
var ErrWouldBlock = errors.New("transport: would block")

// Transport is the client-side collaborator: a single open path to one
// peer. Recv must be non-blocking, returning ErrWouldBlock when idle; any
// other error is treated as fatal by the connection driving it.
type Transport interface {
	Send(data []byte) error
	Recv() ([]byte, error)
	Close() error
}

// ServerTransport is the server-side collaborator: one socket shared by
// many peers, addressed explicitly on every call.
type ServerTransport interface {
	SendTo(addr string, data []byte) error
	RecvFrom() (addr string, data []byte, err error)
	Close() error
}
