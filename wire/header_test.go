package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		MType:             7,
		OrderNum:          1234,
		SenderAckNum:      5678,
		ReceiverAckOffset: 9000,
		AckBits:           0xDEADBEEF,
	}

	encoded := h.Encode()
	require.Len(t, encoded, HeaderSize)

	got, rest, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Empty(t, rest)
}

func TestHeaderRoundTripWithPayload(t *testing.T) {
	h := Header{MType: 1, OrderNum: 0, SenderAckNum: 0, ReceiverAckOffset: 0, AckBits: 1}
	payload := []byte("hello world")

	buf := append(h.Encode(), payload...)

	got, rest, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, payload, rest)
}

func TestDecodeShortPacket(t *testing.T) {
	_, _, err := Decode(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestDecodeEmpty(t *testing.T) {
	_, _, err := Decode(nil)
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestWriterReaderRoundTrip(t *testing.T) {
	buf := NewWriter().
		Byte(0x42).
		Uint16(1234).
		Uint32(567890).
		String("Hello World").
		Bytes16([]byte{1, 2, 3}).
		Take()

	r := NewReader(buf)

	b, err := r.Byte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), b)

	u16, err := r.Uint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(1234), u16)

	u32, err := r.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(567890), u32)

	s, err := r.String()
	require.NoError(t, err)
	assert.Equal(t, "Hello World", s)

	raw, err := r.Bytes16()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, raw)

	assert.Zero(t, r.Remaining())
}
