package ack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventosilenzioso/carrierpigeon/registry"
	"github.com/ventosilenzioso/carrierpigeon/wire"
)

func TestEncodeDecodeMsgRoundTrip(t *testing.T) {
	bitfields := []BitfieldEntry{
		{Offset: 96, Bits: 0xFFFF0000},
		{Offset: 64, Bits: 0x0000FFFF},
	}
	residual := []uint16{5, 9, 200}

	buf := EncodeMsg(96, bitfields, residual)
	got, err := DecodeMsg(buf)
	require.NoError(t, err)

	assert.Equal(t, uint16(96), got.AckOffset)
	require.Len(t, got.Bitfields, 2)
	assert.Equal(t, uint16(96), got.Bitfields[0].Offset)
	assert.Equal(t, uint32(0xFFFF0000), got.Bitfields[0].Bits)
	assert.Equal(t, uint16(64), got.Bitfields[1].Offset)
	assert.Equal(t, uint32(0x0000FFFF), got.Bitfields[1].Bits)
	assert.Equal(t, residual, got.Residual)
}

func TestApplyDecodedRetiresSavedSends(t *testing.T) {
	sender := NewSystem()
	n := sender.NextOutgoing()
	sender.Save(wire.Header{MType: 7, SenderAckNum: n}, registry.Reliable, []byte("x"))
	require.True(t, sender.IsSaved(n))

	// Peer's ack.System, modeling what it would build after receiving n.
	receiver := NewSystem()
	receiver.MarkReceived(n)
	offset, bitfields, residual := receiver.BuildAckMsg()

	sender.ApplyDecoded(DecodedMsg{AckOffset: offset, Bitfields: bitfields, Residual: residual})
	assert.False(t, sender.IsSaved(n))
}
