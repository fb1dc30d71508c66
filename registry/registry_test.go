package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type connMsg struct{ Name string }
type acceptMsg struct{}
type rejectMsg struct{ Reason string }
type disconnectMsg struct{}

type chatMsg struct{ Text string }
type posMsg struct{ X, Y, Z float32 }

func bytesCodec[T any](_ T) ([]byte, error) { return nil, nil }

func noopControlCodec[T any]() ControlCodec[T] {
	return ControlCodec[T]{
		Serialize:   func(T) ([]byte, error) { return nil, nil },
		Deserialize: func([]byte) (T, error) { var z T; return z, nil },
	}
}

func TestBuildFixedControlSlots(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, RegisterNamed(b, "chat", Reliable, func(chatMsg) ([]byte, error) { return nil, nil }, func([]byte) (chatMsg, error) { return chatMsg{}, nil }))

	table, err := Build(b, noopControlCodec[connMsg](), noopControlCodec[acceptMsg](), noopControlCodec[rejectMsg](), noopControlCodec[disconnectMsg]())
	require.NoError(t, err)

	g, err := table.Guarantee(MTypeConnection)
	require.NoError(t, err)
	assert.Equal(t, Reliable, g)

	g, err = table.Guarantee(MTypePing)
	require.NoError(t, err)
	assert.Equal(t, Unreliable, g)

	g, err = table.Guarantee(7)
	require.NoError(t, err)
	assert.Equal(t, Reliable, g)
}

func TestRegisterNamedSortsDeterministically(t *testing.T) {
	b1 := NewBuilder()
	require.NoError(t, RegisterNamed(b1, "zebra", Reliable, func(chatMsg) ([]byte, error) { return nil, nil }, func([]byte) (chatMsg, error) { return chatMsg{}, nil }))
	require.NoError(t, RegisterNamed(b1, "alpha", Unreliable, func(posMsg) ([]byte, error) { return nil, nil }, func([]byte) (posMsg, error) { return posMsg{}, nil }))

	b2 := NewBuilder()
	require.NoError(t, RegisterNamed(b2, "alpha", Unreliable, func(posMsg) ([]byte, error) { return nil, nil }, func([]byte) (posMsg, error) { return posMsg{}, nil }))
	require.NoError(t, RegisterNamed(b2, "zebra", Reliable, func(chatMsg) ([]byte, error) { return nil, nil }, func([]byte) (chatMsg, error) { return chatMsg{}, nil }))

	t1, err := Build(b1, noopControlCodec[connMsg](), noopControlCodec[acceptMsg](), noopControlCodec[rejectMsg](), noopControlCodec[disconnectMsg]())
	require.NoError(t, err)
	t2, err := Build(b2, noopControlCodec[connMsg](), noopControlCodec[acceptMsg](), noopControlCodec[rejectMsg](), noopControlCodec[disconnectMsg]())
	require.NoError(t, err)

	g1, _ := t1.Guarantee(7) // alpha sorts before zebra
	g2, _ := t2.Guarantee(7)
	assert.Equal(t, g1, g2)
	assert.Equal(t, Unreliable, g1)
}

func TestRegisterDuplicateType(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, Register(b, Reliable, func(chatMsg) ([]byte, error) { return nil, nil }, func([]byte) (chatMsg, error) { return chatMsg{}, nil }))
	err := Register(b, Reliable, func(chatMsg) ([]byte, error) { return nil, nil }, func([]byte) (chatMsg, error) { return chatMsg{}, nil })
	assert.ErrorIs(t, err, ErrDuplicateType)
}

func TestRegisterNamedDuplicateIdentifier(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, RegisterNamed(b, "chat", Reliable, func(chatMsg) ([]byte, error) { return nil, nil }, func([]byte) (chatMsg, error) { return chatMsg{}, nil }))
	err := RegisterNamed(b, "chat", Unreliable, func(posMsg) ([]byte, error) { return nil, nil }, func([]byte) (posMsg, error) { return posMsg{}, nil })
	assert.ErrorIs(t, err, ErrDuplicateIdentifier)
}

func TestUnregisteredType(t *testing.T) {
	b := NewBuilder()
	table, err := Build(b, noopControlCodec[connMsg](), noopControlCodec[acceptMsg](), noopControlCodec[rejectMsg](), noopControlCodec[disconnectMsg]())
	require.NoError(t, err)

	_, err = table.Guarantee(99)
	assert.ErrorIs(t, err, ErrUnregisteredType)
}
