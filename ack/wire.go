package ack

import "github.com/ventosilenzioso/carrierpigeon/wire"

// EncodeMsg serializes a dedicated ack message body:
// ack_offset:u16, bitfields_len:u16, bitfields[]:u32, residual_len:u16,
// residual[]:u16.
func EncodeMsg(ackOffset uint16, bitfields []BitfieldEntry, residual []uint16) []byte {
	w := wire.NewWriter()
	w.Uint16(ackOffset)
	w.Uint16(uint16(len(bitfields)))
	for _, b := range bitfields {
		w.Uint32(b.Bits)
	}
	w.Uint16(uint16(len(residual)))
	for _, n := range residual {
		w.Uint16(n)
	}
	return w.Take()
}

// DecodedMsg is a dedicated ack message as received from a peer.
type DecodedMsg struct {
	AckOffset uint16
	Bitfields []BitfieldEntry
	Residual  []uint16
}

// DecodeMsg parses a dedicated ack message body. Bitfield offsets are
// reconstructed the same way BuildAckMsg assigns them: the first entry is
// the front bucket at AckOffset, each subsequent entry BitfieldWidth lower.
func DecodeMsg(data []byte) (DecodedMsg, error) {
	r := wire.NewReader(data)

	ackOffset, err := r.Uint16()
	if err != nil {
		return DecodedMsg{}, err
	}
	bitfieldsLen, err := r.Uint16()
	if err != nil {
		return DecodedMsg{}, err
	}
	bitfields := make([]BitfieldEntry, bitfieldsLen)
	for i := range bitfields {
		bits, err := r.Uint32()
		if err != nil {
			return DecodedMsg{}, err
		}
		bitfields[i] = BitfieldEntry{
			Offset: ackOffset - uint16(BitfieldWidth*i),
			Bits:   bits,
		}
	}
	residualLen, err := r.Uint16()
	if err != nil {
		return DecodedMsg{}, err
	}
	residual := make([]uint16, residualLen)
	for i := range residual {
		n, err := r.Uint16()
		if err != nil {
			return DecodedMsg{}, err
		}
		residual[i] = n
	}
	return DecodedMsg{AckOffset: ackOffset, Bitfields: bitfields, Residual: residual}, nil
}

// ApplyDecoded retires every saved send acknowledged by a peer's dedicated
// ack message: every bit set in any bitfield, plus every residual entry.
func (s *System) ApplyDecoded(msg DecodedMsg) {
	for _, b := range msg.Bitfields {
		s.MarkBitfield(b.Offset, b.Bits)
	}
	for _, n := range msg.Residual {
		s.MarkOutgoing(n)
	}
}
