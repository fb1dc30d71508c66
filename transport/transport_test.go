package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackPairDelivers(t *testing.T) {
	a, b := NewLoopbackPair(nil)

	require.NoError(t, a.Send([]byte("hello")))
	got, err := b.Recv()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	_, err = b.Recv()
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestLoopbackPairBidirectional(t *testing.T) {
	a, b := NewLoopbackPair(nil)

	require.NoError(t, b.Send([]byte("pong")))
	got, err := a.Recv()
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), got)
}

func TestLoopbackLossFuncDrops(t *testing.T) {
	a, b := NewLoopbackPair(func([]byte) bool { return true })

	require.NoError(t, a.Send([]byte("never arrives")))
	_, err := b.Recv()
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestLoopbackServerRoutesByAddr(t *testing.T) {
	server := NewLoopbackServer(nil)
	client := server.Connect("peer-1")

	require.NoError(t, client.Send([]byte("hi server")))
	addr, data, err := server.RecvFrom()
	require.NoError(t, err)
	assert.Equal(t, "peer-1", addr)
	assert.Equal(t, []byte("hi server"), data)

	require.NoError(t, server.SendTo("peer-1", []byte("hi client")))
	got, err := client.Recv()
	require.NoError(t, err)
	assert.Equal(t, []byte("hi client"), got)
}

func TestLoopbackServerUnknownPeerIsNoop(t *testing.T) {
	server := NewLoopbackServer(nil)
	assert.NoError(t, server.SendTo("ghost", []byte("x")))
}

func TestLoopbackServerRecvFromEmptyIsWouldBlock(t *testing.T) {
	server := NewLoopbackServer(nil)
	_, _, err := server.RecvFrom()
	assert.ErrorIs(t, err, ErrWouldBlock)
}
