// Package registrytest centralizes the example message types used by the
// conn tests and cmd/pigeonecho.
package registrytest

import (
	"github.com/ventosilenzioso/carrierpigeon/registry"
	"github.com/ventosilenzioso/carrierpigeon/wire"
)

// ChatMsg is ReliableOrdered: a stream of text that must arrive complete
// and in order.
type ChatMsg struct {
	Text string
}

// PosMsg is UnreliableNewest: only the latest position matters.
type PosMsg struct {
	X, Y, Z int32
}

// PingPayloadMsg is Unreliable: fire-and-forget, never saved.
type PingPayloadMsg struct {
	Seq uint32
}

// ScoreMsg is ReliableNewest: must arrive, but only the latest value is
// worth keeping if an earlier one is still unacked.
type ScoreMsg struct {
	Value int32
}

// StatMsg is Reliable: must arrive, no ordering requirement.
type StatMsg struct {
	Name  string
	Value int32
}

// ConnectionMsg is the control message sent by Connect.
type ConnectionMsg struct {
	User string
}

// AcceptMsg is the control message a server sends to accept a pending peer.
type AcceptMsg struct{}

// RejectMsg is the control message a server sends to reject a pending peer.
type RejectMsg struct {
	Reason string
}

// DisconnectMsg is the control message either side sends to disconnect
// gracefully.
type DisconnectMsg struct {
	Reason string
}

// MType assignments are deterministic: BuildTable registers five named
// types, so Build sorts them alphabetically after the six fixed control
// slots — "chat" < "ping_payload" < "pos" < "score" < "stat".
const (
	MTypeChat        = registry.MType(7)
	MTypePingPayload = registry.MType(8)
	MTypePos         = registry.MType(9)
	MTypeScore       = registry.MType(10)
	MTypeStat        = registry.MType(11)
)

func serializeString(s string) ([]byte, error) {
	return wire.NewWriter().String(s).Take(), nil
}

func deserializeString(b []byte) (string, error) {
	return wire.NewReader(b).String()
}

// BuildTable assembles a registry.Table exercising every Guarantee,
// matching the way an application wires its own message set.
func BuildTable() (*registry.Table, error) {
	b := registry.NewBuilder()

	if err := registry.RegisterNamed(b, "chat", registry.ReliableOrdered,
		func(m ChatMsg) ([]byte, error) { return serializeString(m.Text) },
		func(b []byte) (ChatMsg, error) { s, err := deserializeString(b); return ChatMsg{Text: s}, err },
	); err != nil {
		return nil, err
	}

	if err := registry.RegisterNamed(b, "pos", registry.UnreliableNewest,
		func(m PosMsg) ([]byte, error) {
			w := wire.NewWriter()
			w.Uint32(uint32(m.X))
			w.Uint32(uint32(m.Y))
			w.Uint32(uint32(m.Z))
			return w.Take(), nil
		},
		func(buf []byte) (PosMsg, error) {
			r := wire.NewReader(buf)
			x, err := r.Uint32()
			if err != nil {
				return PosMsg{}, err
			}
			y, err := r.Uint32()
			if err != nil {
				return PosMsg{}, err
			}
			z, err := r.Uint32()
			if err != nil {
				return PosMsg{}, err
			}
			return PosMsg{X: int32(x), Y: int32(y), Z: int32(z)}, nil
		},
	); err != nil {
		return nil, err
	}

	if err := registry.RegisterNamed(b, "ping_payload", registry.Unreliable,
		func(m PingPayloadMsg) ([]byte, error) { return wire.NewWriter().Uint32(m.Seq).Take(), nil },
		func(buf []byte) (PingPayloadMsg, error) {
			seq, err := wire.NewReader(buf).Uint32()
			return PingPayloadMsg{Seq: seq}, err
		},
	); err != nil {
		return nil, err
	}

	if err := registry.RegisterNamed(b, "score", registry.ReliableNewest,
		func(m ScoreMsg) ([]byte, error) { return wire.NewWriter().Uint32(uint32(m.Value)).Take(), nil },
		func(buf []byte) (ScoreMsg, error) {
			v, err := wire.NewReader(buf).Uint32()
			return ScoreMsg{Value: int32(v)}, err
		},
	); err != nil {
		return nil, err
	}

	if err := registry.RegisterNamed(b, "stat", registry.Reliable,
		func(m StatMsg) ([]byte, error) {
			w := wire.NewWriter()
			w.String(m.Name)
			w.Uint32(uint32(m.Value))
			return w.Take(), nil
		},
		func(buf []byte) (StatMsg, error) {
			r := wire.NewReader(buf)
			name, err := r.String()
			if err != nil {
				return StatMsg{}, err
			}
			v, err := r.Uint32()
			return StatMsg{Name: name, Value: int32(v)}, err
		},
	); err != nil {
		return nil, err
	}

	conn := registry.ControlCodec[ConnectionMsg]{
		Serialize: func(m ConnectionMsg) ([]byte, error) { return serializeString(m.User) },
		Deserialize: func(b []byte) (ConnectionMsg, error) {
			s, err := deserializeString(b)
			return ConnectionMsg{User: s}, err
		},
	}
	accept := registry.ControlCodec[AcceptMsg]{
		Serialize:   func(AcceptMsg) ([]byte, error) { return nil, nil },
		Deserialize: func([]byte) (AcceptMsg, error) { return AcceptMsg{}, nil },
	}
	reject := registry.ControlCodec[RejectMsg]{
		Serialize:   func(m RejectMsg) ([]byte, error) { return serializeString(m.Reason) },
		Deserialize: func(b []byte) (RejectMsg, error) { s, err := deserializeString(b); return RejectMsg{Reason: s}, err },
	}
	disconnect := registry.ControlCodec[DisconnectMsg]{
		Serialize: func(m DisconnectMsg) ([]byte, error) { return serializeString(m.Reason) },
		Deserialize: func(b []byte) (DisconnectMsg, error) {
			s, err := deserializeString(b)
			return DisconnectMsg{Reason: s}, err
		},
	}

	return registry.Build(b, conn, accept, reject, disconnect)
}
