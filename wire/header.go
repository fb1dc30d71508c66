// Package wire implements the fixed 12-byte header that prefixes every
// datagram carrierpigeon sends or receives.
package wire

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the on-wire size of Header, in bytes.
const HeaderSize = 12

// ErrShortPacket is returned by Decode when the buffer is smaller than
// HeaderSize.
var ErrShortPacket = errors.New("wire: packet shorter than header size")

// Header is the fixed-layout, big-endian prefix of every datagram.
//
//	m_type:u16, order_num:u16, sender_ack_num:u16,
//	receiver_ack_offset:u16, ack_bits:u32
type Header struct {
	MType             uint16
	OrderNum          uint16
	SenderAckNum      uint16
	ReceiverAckOffset uint16
	AckBits           uint32
}

// Encode writes h in its 12-byte wire form.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	h.EncodeInto(buf)
	return buf
}

// EncodeInto writes h into buf, which must have length >= HeaderSize.
func (h Header) EncodeInto(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], h.MType)
	binary.BigEndian.PutUint16(buf[2:4], h.OrderNum)
	binary.BigEndian.PutUint16(buf[4:6], h.SenderAckNum)
	binary.BigEndian.PutUint16(buf[6:8], h.ReceiverAckOffset)
	binary.BigEndian.PutUint32(buf[8:12], h.AckBits)
}

// Decode parses a Header from the front of buf. The remainder of buf (the
// application payload) is returned unchanged.
func Decode(buf []byte) (Header, []byte, error) {
	if len(buf) < HeaderSize {
		return Header{}, nil, ErrShortPacket
	}
	h := Header{
		MType:             binary.BigEndian.Uint16(buf[0:2]),
		OrderNum:          binary.BigEndian.Uint16(buf[2:4]),
		SenderAckNum:      binary.BigEndian.Uint16(buf[4:6]),
		ReceiverAckOffset: binary.BigEndian.Uint16(buf[6:8]),
		AckBits:           binary.BigEndian.Uint32(buf[8:12]),
	}
	return h, buf[HeaderSize:], nil
}
