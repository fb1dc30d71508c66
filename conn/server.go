package conn

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ventosilenzioso/carrierpigeon/registry"
	"github.com/ventosilenzioso/carrierpigeon/reliable"
	"github.com/ventosilenzioso/carrierpigeon/transport"
	"github.com/ventosilenzioso/carrierpigeon/wire"
)

// CId is a server-assigned connection id, unique for the server's lifetime.
type CId uint32

// Pending is a peer whose Connection message has arrived but has not yet
// been accepted or rejected.
type Pending struct {
	CId        CId
	Addr       string
	Connection any
}

type peer struct {
	cid      CId
	addr     string
	reliable *reliable.System
}

// rejected tracks a peer that was rejected but whose Reject message is
// still awaiting acknowledgement; the pending entry is discarded once it's
// acked (Open Question (c)).
type rejected struct {
	addr     string
	reliable *reliable.System
	ackNum   uint16
}

// Server is the server side of the connection state machine. It owns a
// Connection Directory (CId <-> address, bidirectional, O(1) both ways), a
// pending queue of unaccepted peers, and one reliable.System per accepted
// peer.
type Server[C, A, R, D any] struct {
	table     *registry.Table
	transport transport.ServerTransport
	log       *zap.Logger

	nextCId CId

	byCId  map[CId]*peer
	byAddr map[string]*peer

	pending    map[string]pendingEntry[C]
	pendingOrd []string // insertion order, for deterministic Pending() iteration
	rejecting  map[string]*rejected
	// finishing holds peers that sent Disconnect: removed from the
	// directory immediately, but kept alive briefly so the dedicated ack
	// advertising their Disconnect's AckNum actually goes out.
	finishing map[string]*peer
}

type pendingEntry[C any] struct {
	cid CId
	msg C
}

// NewServer returns a Server in its zero state, bound to t and table.
func NewServer[C, A, R, D any](t transport.ServerTransport, table *registry.Table, log *zap.Logger) *Server[C, A, R, D] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server[C, A, R, D]{
		table:     table,
		transport: t,
		log:       log,
		byCId:     make(map[CId]*peer),
		byAddr:    make(map[string]*peer),
		pending:   make(map[string]pendingEntry[C]),
		rejecting: make(map[string]*rejected),
		finishing: make(map[string]*peer),
	}
}

// Pending lists every address with an unaccepted Connection message,
// insertion-ordered.
func (s *Server[C, A, R, D]) Pending() []Pending {
	out := make([]Pending, 0, len(s.pendingOrd))
	for _, addr := range s.pendingOrd {
		e, ok := s.pending[addr]
		if !ok {
			continue
		}
		out = append(out, Pending{CId: e.cid, Addr: addr, Connection: e.msg})
	}
	return out
}

// Accept promotes a pending peer into the connection directory, giving it
// its own reliable.System, and reliably sends a (and the issued CId is
// available via the Connection Directory afterward).
func (s *Server[C, A, R, D]) Accept(addr string, a A) error {
	e, ok := s.pending[addr]
	if !ok {
		return fmt.Errorf("conn: accept: no pending connection from %s", addr)
	}
	delete(s.pending, addr)
	s.removePendingOrd(addr)

	p := &peer{cid: e.cid, addr: addr, reliable: reliable.NewSystem(s.table)}
	s.byCId[e.cid] = p
	s.byAddr[addr] = p

	return s.sendTo(p.reliable, addr, registry.MTypeAccept, a)
}

// Reject discards a pending peer and reliably sends r. The rejection stays
// tracked in an ephemeral reliable.System until the Reject message is
// observed acked, per the "rejected connection gets retransmission too"
// decision.
func (s *Server[C, A, R, D]) Reject(addr string, r R) error {
	if _, ok := s.pending[addr]; !ok {
		return fmt.Errorf("conn: reject: no pending connection from %s", addr)
	}
	delete(s.pending, addr)
	s.removePendingOrd(addr)

	rel := reliable.NewSystem(s.table)
	ack, err := s.sendToRaw(rel, addr, registry.MTypeReject, r)
	if err != nil {
		return err
	}
	s.rejecting[addr] = &rejected{addr: addr, reliable: rel, ackNum: ack}
	return nil
}

// Disconnect sends d reliably to the peer identified by cid and removes it
// from the connection directory immediately: the server does not need to
// observe the ack, since the peer's own disconnect handling covers the
// Disconnecting->NotConnected transition on that side.
func (s *Server[C, A, R, D]) Disconnect(cid CId, d D) error {
	p, ok := s.byCId[cid]
	if !ok {
		return fmt.Errorf("conn: disconnect: unknown CId %d", cid)
	}
	if err := s.sendTo(p.reliable, p.addr, registry.MTypeDisconnect, d); err != nil {
		return err
	}
	delete(s.byCId, cid)
	delete(s.byAddr, p.addr)
	return nil
}

// Stats reports the reliability-engine counters for cid, for metrics.
func (s *Server[C, A, R, D]) Stats(cid CId) (windowSize, residualCount, savedCount int, ok bool) {
	p, found := s.byCId[cid]
	if !found {
		return 0, 0, 0, false
	}
	a := p.reliable.Ack()
	return a.WindowSize(), a.ResidualCount(), a.SavedCount(), true
}

// CIds lists every currently-connected peer's CId.
func (s *Server[C, A, R, D]) CIds() []CId {
	out := make([]CId, 0, len(s.byCId))
	for cid := range s.byCId {
		out = append(out, cid)
	}
	return out
}

// Lookup resolves a CId to its current address, O(1).
func (s *Server[C, A, R, D]) Lookup(cid CId) (string, bool) {
	p, ok := s.byCId[cid]
	if !ok {
		return "", false
	}
	return p.addr, true
}

// LookupAddr resolves an address to its CId, O(1).
func (s *Server[C, A, R, D]) LookupAddr(addr string) (CId, bool) {
	p, ok := s.byAddr[addr]
	if !ok {
		return 0, false
	}
	return p.cid, true
}

// Send serializes v on m and sends it to cid's current address.
func (s *Server[C, A, R, D]) Send(cid CId, m registry.MType, v any) (uint16, error) {
	p, ok := s.byCId[cid]
	if !ok {
		return 0, fmt.Errorf("conn: send: unknown CId %d", cid)
	}
	return s.sendToRaw(p.reliable, p.addr, m, v)
}

func (s *Server[C, A, R, D]) sendTo(rel *reliable.System, addr string, m registry.MType, v any) error {
	_, err := s.sendToRaw(rel, addr, m, v)
	return err
}

func (s *Server[C, A, R, D]) sendToRaw(rel *reliable.System, addr string, m registry.MType, v any) (uint16, error) {
	payload, err := s.table.Serialize(m, v)
	if err != nil {
		return 0, fmt.Errorf("conn: serialize MType %d: %w", m, err)
	}
	g, err := s.table.Guarantee(m)
	if err != nil {
		return 0, err
	}
	h := rel.NextSendHeader(m)
	rel.Save(h, g, payload)

	buf := h.Encode()
	buf = append(buf, payload...)
	return h.SenderAckNum, s.transport.SendTo(addr, buf)
}

// Tick drains the transport, advances every accepted peer's reliable
// subsystem, and retires fully-acked rejections.
func (s *Server[C, A, R, D]) Tick(now time.Time) map[CId][]Received {
	out := make(map[CId][]Received)

	for {
		addr, buf, err := s.transport.RecvFrom()
		if err != nil {
			if err == transport.ErrWouldBlock {
				break
			}
			s.log.Warn("server transport error", zap.Error(err))
			break
		}
		s.handleDatagram(addr, buf, out)
	}

	for _, p := range s.byCId {
		for _, saved := range p.reliable.DueResends() {
			buf := saved.Header.Encode()
			buf = append(buf, saved.Payload...)
			_ = s.transport.SendTo(p.addr, buf)
		}
		if p.reliable.HasPendingAckAdvertisement() {
			payload := p.reliable.EncodeAckMsg()
			h := p.reliable.NextSendHeader(registry.MTypeAck)
			buf := h.Encode()
			buf = append(buf, payload...)
			_ = s.transport.SendTo(p.addr, buf)
		}
	}

	for addr, rj := range s.rejecting {
		if !rj.reliable.IsPending(rj.ackNum) {
			delete(s.rejecting, addr)
			continue
		}
		for _, saved := range rj.reliable.DueResends() {
			buf := saved.Header.Encode()
			buf = append(buf, saved.Payload...)
			_ = s.transport.SendTo(addr, buf)
		}
	}

	for addr, p := range s.finishing {
		payload := p.reliable.EncodeAckMsg()
		h := p.reliable.NextSendHeader(registry.MTypeAck)
		buf := h.Encode()
		buf = append(buf, payload...)
		_ = s.transport.SendTo(addr, buf)
		if !p.reliable.HasPendingAckAdvertisement() {
			delete(s.finishing, addr)
		}
	}

	return out
}

func (s *Server[C, A, R, D]) handleDatagram(addr string, buf []byte, out map[CId][]Received) {
	h, payload, err := wire.Decode(buf)
	if err != nil {
		s.log.Debug("dropping malformed datagram", zap.String("addr", addr), zap.Error(err))
		return
	}
	m := registry.MType(h.MType)

	if rj, ok := s.rejecting[addr]; ok {
		if m == registry.MTypeAck {
			if err := rj.reliable.ApplyAckMsg(payload); err != nil {
				s.log.Debug("dropping malformed ack from rejected peer", zap.Error(err))
			}
			return
		}
	}

	if p, ok := s.byAddr[addr]; ok {
		if m == registry.MTypeAck {
			if err := p.reliable.ApplyAckMsg(payload); err != nil {
				s.log.Debug("dropping malformed ack", zap.Error(err))
			}
			return
		}
		if m == registry.MTypeDisconnect {
			// Register the ack so the reliable system advertises it back
			// to the peer before this entry is torn down.
			if err := p.reliable.PushReceived(h, payload); err != nil {
				s.log.Debug("dropping unregistered Disconnect", zap.Error(err))
				return
			}
			for _, r := range p.reliable.DrainReady() {
				v, err := s.table.Deserialize(r.MType, r.Payload)
				if err != nil {
					continue
				}
				out[p.cid] = append(out[p.cid], Received{MType: r.MType, Value: v})
			}
			delete(s.byCId, p.cid)
			delete(s.byAddr, addr)
			s.finishing[addr] = p
			return
		}
		if m == registry.MTypePing || m == registry.MTypeConnection {
			// Control traffic from an accepted peer (pings, a resent
			// Connection message): its acks are recorded, but it is never
			// delivered to the application.
			p.reliable.Ack().MarkReceived(h.SenderAckNum)
			p.reliable.Ack().MarkBitfield(h.ReceiverAckOffset, h.AckBits)
			return
		}
		if err := p.reliable.PushReceived(h, payload); err != nil {
			s.log.Debug("dropping unregistered MType", zap.Uint16("mtype", h.MType))
			return
		}
		for _, r := range p.reliable.DrainReady() {
			v, err := s.table.Deserialize(r.MType, r.Payload)
			if err != nil {
				continue
			}
			out[p.cid] = append(out[p.cid], Received{MType: r.MType, Value: v})
		}
		return
	}

	if p, ok := s.finishing[addr]; ok {
		// Stray resend of the Disconnect (or its piggybacked acks) from a
		// peer already torn down; keep acking it, deliver nothing further.
		_ = p.reliable.PushReceived(h, payload)
		return
	}

	if m != registry.MTypeConnection {
		s.log.Debug("datagram from unknown peer before Connection", zap.String("addr", addr), zap.Uint16("mtype", h.MType))
		return
	}
	if _, ok := s.pending[addr]; ok {
		return // already pending; duplicate handshake retry, ignore
	}
	v, err := s.table.Deserialize(m, payload)
	if err != nil {
		s.log.Debug("dropping undeserializable Connection", zap.Error(err))
		return
	}
	c, ok := v.(C)
	if !ok {
		s.log.Debug("dropping Connection of mismatched type")
		return
	}
	cid := s.nextCId
	s.nextCId++
	s.pending[addr] = pendingEntry[C]{cid: cid, msg: c}
	s.pendingOrd = append(s.pendingOrd, addr)
}

func (s *Server[C, A, R, D]) removePendingOrd(addr string) {
	for i, a := range s.pendingOrd {
		if a == addr {
			s.pendingOrd = append(s.pendingOrd[:i], s.pendingOrd[i+1:]...)
			return
		}
	}
}
