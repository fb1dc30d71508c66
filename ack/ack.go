// Package ack implements the outbound AckNum allocator, the inbound
// ack-bitfield sliding window, the residual ack set, and the saved-message
// resend queue described by the reliability engine's ack subsystem.
package ack

import (
	"sort"
	"time"

	"github.com/ventosilenzioso/carrierpigeon/registry"
	"github.com/ventosilenzioso/carrierpigeon/seqnum"
	"github.com/ventosilenzioso/carrierpigeon/wire"
)

// BitfieldWidth is the number of AckNums a single bitfield entry covers.
const BitfieldWidth = 32

// SendAckThreshold is the minimum number of times a bitfield must have been
// advertised before it is allowed to slide out of the window.
const SendAckThreshold = 2

// ResendInterval is how long a saved reliable send waits before it is
// considered due for retransmission.
const ResendInterval = 1000 * time.Millisecond

type bitfield struct {
	bits      uint32
	sendCount int
}

// Saved is a reliable send awaiting acknowledgement.
type Saved struct {
	SentAt  time.Time
	Header  wire.Header
	Payload []byte
}

// System owns the bitfield window, residual ack set, and saved-message map
// for one connection direction.
type System struct {
	outgoing uint16

	ackOffset uint16
	window    []bitfield // window[0] is the front (newest); window[len-1] is the tail (oldest retained)
	nextIdx   int

	residual []uint16

	saved map[uint16]Saved
}

// NewSystem returns a System with an empty, single-bitfield window anchored
// at AckNum 0, matching the "window always non-empty" invariant.
func NewSystem() *System {
	return &System{
		window: []bitfield{{}},
		saved:  make(map[uint16]Saved),
	}
}

// NextOutgoing returns the next AckNum to stamp on an outbound message and
// advances the counter, wrapping modulo 2^16.
func (s *System) NextOutgoing() uint16 {
	n := s.outgoing
	s.outgoing++
	return n
}

// MarkReceived records that AckNum n has arrived from the peer.
func (s *System) MarkReceived(n uint16) {
	for seqnum.GreaterOrEqual(n, s.ackOffset+BitfieldWidth) {
		if len(s.window) > 0 {
			tail := s.window[len(s.window)-1]
			if tail.sendCount >= SendAckThreshold {
				s.window = s.window[:len(s.window)-1]
			}
		}
		s.window = append([]bitfield{{}}, s.window...)
		s.ackOffset += BitfieldWidth
		s.PruneResidual()
	}

	delta := int(seqnum.Diff(s.ackOffset, n)) // ackOffset - n, signed
	idx := 0
	if delta > 0 {
		idx = (delta + BitfieldWidth - 1) / BitfieldWidth
	}
	if idx >= len(s.window) {
		s.residual = append(s.residual, n)
		return
	}
	bitpos := uint(BitfieldWidth*idx - delta)
	s.window[idx].bits |= 1 << bitpos
}

// MarkOutgoing retires a saved reliable send, if one exists for n.
func (s *System) MarkOutgoing(n uint16) {
	delete(s.saved, n)
}

// MarkBitfield retires every saved send whose AckNum is set in bits,
// offset by offset (the bucket's own base, as handed out by
// NextHeaderAck/BuildAckMsg).
func (s *System) MarkBitfield(offset uint16, bits uint32) {
	for i := uint(0); i < BitfieldWidth; i++ {
		if bits&(1<<i) != 0 {
			s.MarkOutgoing(offset + uint16(i))
		}
	}
}

// NextHeaderAck round-robins over the window, returning the base offset and
// bits of the bucket the current index points at, and bumps that bucket's
// send_count. Used to piggyback a single bitfield onto an ordinary outbound
// header.
func (s *System) NextHeaderAck() (offset uint16, bits uint32) {
	idx := s.nextIdx % len(s.window)
	s.nextIdx = (idx + 1) % len(s.window)

	s.window[idx].sendCount++
	offset = s.ackOffset - uint16(BitfieldWidth*idx)
	bits = s.window[idx].bits
	return offset, bits
}

// BitfieldEntry is one bucket of the window, as returned by BuildAckMsg.
type BitfieldEntry struct {
	Offset uint16
	Bits   uint32
}

// BuildAckMsg returns the full window (front to tail) plus the residual
// set, for the dedicated ack message, and bumps every window entry's
// send_count.
func (s *System) BuildAckMsg() (ackOffset uint16, bitfields []BitfieldEntry, residual []uint16) {
	bitfields = make([]BitfieldEntry, len(s.window))
	for i := range s.window {
		s.window[i].sendCount++
		bitfields[i] = BitfieldEntry{
			Offset: s.ackOffset - uint16(BitfieldWidth*i),
			Bits:   s.window[i].bits,
		}
	}
	residualCopy := make([]uint16, len(s.residual))
	copy(residualCopy, s.residual)
	return s.ackOffset, bitfields, residualCopy
}

// HasPendingAdvertisement reports whether the ack subsystem has anything
// that still needs advertising to the peer: a residual entry, or a window
// bucket that hasn't yet been sent twice.
func (s *System) HasPendingAdvertisement() bool {
	if len(s.residual) > 0 {
		return true
	}
	for _, b := range s.window {
		if b.sendCount < SendAckThreshold {
			return true
		}
	}
	return false
}

// Save stores an outbound reliable send so it can be resent until acked.
// Unreliable guarantees are a no-op. ReliableNewest drops any previously
// saved entry of the same MType.
func (s *System) Save(h wire.Header, g registry.Guarantee, payload []byte) {
	if !g.IsReliable() {
		return
	}
	if g == registry.ReliableNewest {
		for ack, entry := range s.saved {
			if entry.Header.MType == h.MType {
				delete(s.saved, ack)
				break
			}
		}
	}
	s.saved[h.SenderAckNum] = Saved{SentAt: time.Now(), Header: h, Payload: payload}
}

// DueResends returns every saved entry whose resend interval has elapsed,
// resetting each one's SentAt to now. Order is by AckNum for determinism.
func (s *System) DueResends() []Saved {
	now := time.Now()
	var due []Saved
	var keys []uint16
	for k, entry := range s.saved {
		if now.Sub(entry.SentAt) > ResendInterval {
			keys = append(keys, k)
			due = append(due, entry)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return seqnum.LessThan(keys[i], keys[j]) })
	sort.Slice(due, func(i, j int) bool { return seqnum.LessThan(due[i].Header.SenderAckNum, due[j].Header.SenderAckNum) })
	for _, k := range keys {
		entry := s.saved[k]
		entry.SentAt = now
		s.saved[k] = entry
	}
	return due
}

// SavedCount reports how many reliable sends are currently awaiting ack,
// for metrics.
func (s *System) SavedCount() int {
	return len(s.saved)
}

// IsSaved reports whether AckNum n still has an unacknowledged saved send.
func (s *System) IsSaved(n uint16) bool {
	_, ok := s.saved[n]
	return ok
}

// WindowSize reports the current bitfield window length, for metrics.
func (s *System) WindowSize() int {
	return len(s.window)
}

// ResidualCount reports the size of the residual ack set, for metrics.
func (s *System) ResidualCount() int {
	return len(s.residual)
}

// PruneResidual drops residual entries more than half the sequence space
// behind the current ack_offset; such entries can never again be
// distinguished from a fresh arrival once ack_offset itself has wrapped
// past them (Open Question (a)). MarkReceived calls it on every slide.
func (s *System) PruneResidual() {
	if len(s.residual) == 0 {
		return
	}
	kept := s.residual[:0]
	for _, n := range s.residual {
		if seqnum.Diff(s.ackOffset, n) >= 0 {
			kept = append(kept, n)
		}
	}
	s.residual = kept
}
