// Package reliable composes the ack subsystem with a per-MType ordering
// buffer, exposing the save/resend/push-received/drain-ready surface a
// Connection drives each tick.
package reliable

import (
	"sort"

	"github.com/ventosilenzioso/carrierpigeon/ack"
	"github.com/ventosilenzioso/carrierpigeon/order"
	"github.com/ventosilenzioso/carrierpigeon/registry"
	"github.com/ventosilenzioso/carrierpigeon/wire"
)

// Received is one payload pulled out by DrainReady, tagged with the MType
// it arrived as so the caller can deserialize and dispatch it.
type Received struct {
	MType   registry.MType
	Payload []byte
}

// System composes the ack.System and one ordering buffer per registered
// ordered or UnreliableNewest MType.
type System struct {
	table *registry.Table
	ack   *ack.System

	outgoingOrder map[registry.MType]uint16
	ordered       map[registry.MType]*order.Buffer
	newest        map[registry.MType]*order.Newest
	direct        map[registry.MType][][]byte
}

// NewSystem returns a System driven by table for guarantee lookups.
func NewSystem(table *registry.Table) *System {
	return &System{
		table:         table,
		ack:           ack.NewSystem(),
		outgoingOrder: make(map[registry.MType]uint16),
		ordered:       make(map[registry.MType]*order.Buffer),
		newest:        make(map[registry.MType]*order.Newest),
		direct:        make(map[registry.MType][][]byte),
	}
}

// NextSendHeader composes the header for an outbound message of m: it
// allocates the sender AckNum from the ack subsystem, the OrderNum from
// m's outgoing counter, and attaches the currently due piggybacked ack.
func (s *System) NextSendHeader(m registry.MType) wire.Header {
	orderNum := s.outgoingOrder[m]
	s.outgoingOrder[m] = orderNum + 1

	ackNum := s.ack.NextOutgoing()
	offset, bits := s.ack.NextHeaderAck()

	return wire.Header{
		MType:             uint16(m),
		OrderNum:          orderNum,
		SenderAckNum:      ackNum,
		ReceiverAckOffset: offset,
		AckBits:           bits,
	}
}

// Save delegates to the ack subsystem.
func (s *System) Save(h wire.Header, g registry.Guarantee, payload []byte) {
	s.ack.Save(h, g, payload)
}

// PushReceived acks the sender, consumes the piggybacked ack, and routes
// the payload to the MType's ordering buffer (or marks it immediately
// deliverable if the MType isn't ordered or newest-only).
func (s *System) PushReceived(h wire.Header, payload []byte) error {
	s.ack.MarkReceived(h.SenderAckNum)
	s.ack.MarkBitfield(h.ReceiverAckOffset, h.AckBits)

	m := registry.MType(h.MType)
	g, err := s.table.Guarantee(m)
	if err != nil {
		return err
	}

	switch g {
	case registry.ReliableOrdered:
		buf, ok := s.ordered[m]
		if !ok {
			buf = order.NewBuffer()
			s.ordered[m] = buf
		}
		buf.Push(h.OrderNum, payload)
	case registry.UnreliableNewest:
		n, ok := s.newest[m]
		if !ok {
			n = order.NewNewest()
			s.newest[m] = n
		}
		n.Push(h.OrderNum, payload)
	default:
		s.direct[m] = append(s.direct[m], payload)
	}
	return nil
}

// DrainReady pulls every now-deliverable message across all MTypes,
// iterating MTypes in ascending numeric order for a stable result.
func (s *System) DrainReady() []Received {
	mtypes := make(map[registry.MType]struct{})
	for m := range s.ordered {
		mtypes[m] = struct{}{}
	}
	for m := range s.newest {
		mtypes[m] = struct{}{}
	}
	for m := range s.direct {
		mtypes[m] = struct{}{}
	}

	sorted := make([]registry.MType, 0, len(mtypes))
	for m := range mtypes {
		sorted = append(sorted, m)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var out []Received
	for _, m := range sorted {
		if buf, ok := s.ordered[m]; ok {
			for _, p := range buf.DrainReady() {
				out = append(out, Received{MType: m, Payload: p})
			}
		}
		if n, ok := s.newest[m]; ok {
			for _, p := range n.DrainReady() {
				out = append(out, Received{MType: m, Payload: p})
			}
		}
		if payloads, ok := s.direct[m]; ok && len(payloads) > 0 {
			for _, p := range payloads {
				out = append(out, Received{MType: m, Payload: p})
			}
			delete(s.direct, m)
		}
	}
	return out
}

// DueResends passes through to the ack subsystem.
func (s *System) DueResends() []ack.Saved {
	return s.ack.DueResends()
}

// BuildAckMsg passes through to the ack subsystem.
func (s *System) BuildAckMsg() (ackOffset uint16, bitfields []ack.BitfieldEntry, residual []uint16) {
	return s.ack.BuildAckMsg()
}

// MarkOutgoing passes through to the ack subsystem, retiring the saved
// send for AckNum n.
func (s *System) MarkOutgoing(n uint16) {
	s.ack.MarkOutgoing(n)
}

// HasPendingAckAdvertisement passes through to the ack subsystem.
func (s *System) HasPendingAckAdvertisement() bool {
	return s.ack.HasPendingAdvertisement()
}

// IsPending reports whether AckNum n is still awaiting acknowledgement,
// used by the Disconnecting->NotConnected transition to observe when its
// own disconnect ack has been retired.
func (s *System) IsPending(n uint16) bool {
	return s.ack.IsSaved(n)
}

// Ack exposes the underlying ack.System for components (metrics, the
// dedicated-ack-message path) that need lower-level access.
func (s *System) Ack() *ack.System {
	return s.ack
}

// EncodeAckMsg builds and serializes the dedicated ack message body.
func (s *System) EncodeAckMsg() []byte {
	offset, bitfields, residual := s.ack.BuildAckMsg()
	return ack.EncodeMsg(offset, bitfields, residual)
}

// ApplyAckMsg decodes and applies a peer's dedicated ack message, retiring
// every saved send it acknowledges.
func (s *System) ApplyAckMsg(payload []byte) error {
	msg, err := ack.DecodeMsg(payload)
	if err != nil {
		return err
	}
	s.ack.ApplyDecoded(msg)
	return nil
}
