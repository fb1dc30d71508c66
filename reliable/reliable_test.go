package reliable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ventosilenzioso/carrierpigeon/registry"
	"github.com/ventosilenzioso/carrierpigeon/wire"
)

type chatMsg struct{ Text string }
type posMsg struct{ X int }
type connMsg struct{}
type acceptMsg struct{}
type rejectMsg struct{}
type disconnectMsg struct{}

func noop[T any]() registry.ControlCodec[T] {
	return registry.ControlCodec[T]{
		Serialize:   func(T) ([]byte, error) { return nil, nil },
		Deserialize: func([]byte) (T, error) { var z T; return z, nil },
	}
}

func buildTestTable(t *testing.T) *registry.Table {
	t.Helper()
	b := registry.NewBuilder()
	require.NoError(t, registry.RegisterNamed(b, "chat", registry.ReliableOrdered,
		func(chatMsg) ([]byte, error) { return nil, nil },
		func([]byte) (chatMsg, error) { return chatMsg{}, nil }))
	require.NoError(t, registry.RegisterNamed(b, "pos", registry.UnreliableNewest,
		func(posMsg) ([]byte, error) { return nil, nil },
		func([]byte) (posMsg, error) { return posMsg{}, nil }))
	table, err := registry.Build(b, noop[connMsg](), noop[acceptMsg](), noop[rejectMsg](), noop[disconnectMsg]())
	require.NoError(t, err)
	return table
}

func TestPushReceivedOrdersWithinMType(t *testing.T) {
	table := buildTestTable(t)
	sys := NewSystem(table)

	chatMType, err := chatMTypeOf(table)
	require.NoError(t, err)

	h2 := headerFor(chatMType, 2)
	h0 := headerFor(chatMType, 0)
	h1 := headerFor(chatMType, 1)

	require.NoError(t, sys.PushReceived(h2, []byte("2")))
	assert.Empty(t, sys.DrainReady())

	require.NoError(t, sys.PushReceived(h0, []byte("0")))
	got := sys.DrainReady()
	require.Len(t, got, 1)
	assert.Equal(t, []byte("0"), got[0].Payload)

	require.NoError(t, sys.PushReceived(h1, []byte("1")))
	got = sys.DrainReady()
	require.Len(t, got, 2)
	assert.Equal(t, []byte("1"), got[0].Payload)
	assert.Equal(t, []byte("2"), got[1].Payload)
}

func TestNextSendHeaderAllocatesPerMTypeOrder(t *testing.T) {
	table := buildTestTable(t)
	sys := NewSystem(table)

	chatMType, err := chatMTypeOf(table)
	require.NoError(t, err)

	h1 := sys.NextSendHeader(chatMType)
	h2 := sys.NextSendHeader(chatMType)
	assert.Equal(t, uint16(0), h1.OrderNum)
	assert.Equal(t, uint16(1), h2.OrderNum)
	assert.NotEqual(t, h1.SenderAckNum, h2.SenderAckNum)
}

// chatMTypeOf returns the MType "chat" was assigned: both "chat" and "pos"
// are named registrations, so Build places them after the 6 fixed control
// slots in alphabetical order — "chat" lands on 7.
func chatMTypeOf(table *registry.Table) (registry.MType, error) {
	const chatMType = registry.MType(7)
	if _, err := table.Guarantee(chatMType); err != nil {
		return 0, err
	}
	return chatMType, nil
}

func headerFor(m registry.MType, orderNum uint16) wire.Header {
	return wire.Header{MType: uint16(m), OrderNum: orderNum}
}
