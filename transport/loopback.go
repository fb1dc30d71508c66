package transport

import "sync"

// LossFunc reports whether a datagram about to be delivered should be
// dropped. It is called once per enqueued datagram.
type LossFunc func(data []byte) bool

// Loopback is an in-process Transport double: two endpoints connected by
// buffered channels instead of a socket. It exists so the conn package's
// handshake, resend and disconnect paths can be exercised deterministically
// without binding a real port — the Go equivalent of the original engine's
// habit of driving its reliability test over a real loopback socket with
// `tc netem` induced loss, except the loss is injected in software here
// instead of the kernel.
type Loopback struct {
	send    chan []byte
	recv    chan []byte
	loss    LossFunc
	deliver func(data []byte) // when set, Send hands datagrams here instead of to send
}

// NewLoopbackPair returns two Loopback transports wired to each other: data
// sent on a arrives at b, and vice versa. loss (may be nil) is consulted on
// every send to decide whether the datagram reaches its peer.
func NewLoopbackPair(loss LossFunc) (a, b *Loopback) {
	ab := make(chan []byte, 256)
	ba := make(chan []byte, 256)
	a = &Loopback{send: ab, recv: ba, loss: loss}
	b = &Loopback{send: ba, recv: ab, loss: loss}
	return a, b
}

func (l *Loopback) Send(data []byte) error {
	if l.loss != nil && l.loss(data) {
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	if l.deliver != nil {
		l.deliver(cp)
		return nil
	}
	select {
	case l.send <- cp:
	default:
		// peer isn't draining fast enough; treat like a dropped datagram
		// instead of blocking the sender.
	}
	return nil
}

func (l *Loopback) Recv() ([]byte, error) {
	select {
	case data := <-l.recv:
		return data, nil
	default:
		return nil, ErrWouldBlock
	}
}

func (l *Loopback) Close() error { return nil }

type addressed struct {
	addr string
	data []byte
}

// LoopbackServer is the server-side counterpart of Loopback: it multiplexes
// several named peers behind the ServerTransport interface.
type LoopbackServer struct {
	mu    sync.Mutex
	peers map[string]chan []byte
	inbox chan addressed
	loss  LossFunc
}

// NewLoopbackServer returns an empty server-side loopback transport. Peers
// are registered with Connect as they "dial in".
func NewLoopbackServer(loss LossFunc) *LoopbackServer {
	return &LoopbackServer{
		peers: make(map[string]chan []byte),
		inbox: make(chan addressed, 256),
		loss:  loss,
	}
}

// Connect registers addr as a peer and returns the client-side Transport
// that peer should use to talk to this server.
func (s *LoopbackServer) Connect(addr string) *Loopback {
	toClient := make(chan []byte, 256)

	s.mu.Lock()
	s.peers[addr] = toClient
	s.mu.Unlock()

	return &Loopback{recv: toClient, loss: s.loss, deliver: func(data []byte) {
		select {
		case s.inbox <- addressed{addr: addr, data: data}:
		default:
		}
	}}
}

func (s *LoopbackServer) SendTo(addr string, data []byte) error {
	s.mu.Lock()
	ch, ok := s.peers[addr]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	if s.loss != nil && s.loss(data) {
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case ch <- cp:
	default:
	}
	return nil
}

func (s *LoopbackServer) RecvFrom() (string, []byte, error) {
	select {
	case a := <-s.inbox:
		return a.addr, a.data, nil
	default:
		return "", nil, ErrWouldBlock
	}
}

func (s *LoopbackServer) Close() error { return nil }
