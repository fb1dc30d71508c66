// Package registry builds the fixed, immutable table mapping application
// message types to stable wire identifiers (MType) and delivery
// guarantees. Two peers that build byte-identical registries (or
// equivalent registries after RegisterNamed's name-sort) obtain identical
// MType assignments.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// MType is the small unsigned wire identifier assigned to a registered
// message type.
type MType uint16

// Guarantee is the delivery contract a registered MType carries.
type Guarantee int

const (
	// Unreliable messages are never saved and carry no ordering.
	Unreliable Guarantee = iota
	// UnreliableNewest delivers only the newest-by-OrderNum message to
	// the application; stale arrivals are dropped.
	UnreliableNewest
	// Reliable messages are saved and retransmitted until acked; no
	// ordering is enforced.
	Reliable
	// ReliableOrdered messages are saved, retransmitted, and delivered
	// to the application in sender-issued OrderNum order.
	ReliableOrdered
	// ReliableNewest messages are saved, but an earlier unacked save of
	// the same MType is dropped when a newer one is issued.
	ReliableNewest
)

func (g Guarantee) String() string {
	switch g {
	case Unreliable:
		return "Unreliable"
	case UnreliableNewest:
		return "UnreliableNewest"
	case Reliable:
		return "Reliable"
	case ReliableOrdered:
		return "ReliableOrdered"
	case ReliableNewest:
		return "ReliableNewest"
	default:
		return fmt.Sprintf("Guarantee(%d)", int(g))
	}
}

// Ordered reports whether g requires a per-MType reorder buffer.
func (g Guarantee) Ordered() bool {
	return g == ReliableOrdered
}

// IsReliable reports whether g requires the send to be saved for resend.
func (g Guarantee) IsReliable() bool {
	return g == Reliable || g == ReliableOrdered || g == ReliableNewest
}

// Well-known control MTypes, fixed by Build.
const (
	MTypeConnection MType = 1
	MTypeAccept     MType = 2
	MTypeReject     MType = 3
	MTypeDisconnect MType = 4
	MTypePing       MType = 5
	MTypeAck        MType = 6
	firstUserMType  MType = 7
)

var (
	// ErrDuplicateType is returned by Register when T was already registered.
	ErrDuplicateType = errors.New("registry: type already registered")
	// ErrDuplicateIdentifier is returned by RegisterNamed on a name collision.
	ErrDuplicateIdentifier = errors.New("registry: identifier already registered")
	// ErrUnregisteredType is returned when an MType has no table entry.
	ErrUnregisteredType = errors.New("registry: unregistered message type")
)

// Serializer/Deserializer operate on opaque payloads; the engine never
// inspects them. Application values cross the registry boundary boxed as
// `any` (Table.Serialize takes one, Table.Deserialize returns one).
type Serializer func(v any) ([]byte, error)
type Deserializer func(b []byte) (any, error)

type entry struct {
	name        string
	typ         reflect.Type
	guarantee   Guarantee
	serialize   Serializer
	deserialize Deserializer
	named       bool
}

// Builder accumulates message-type registrations before Build finalizes
// them into an immutable Table.
type Builder struct {
	entries []entry
	byType  map[reflect.Type]int
	byName  map[string]int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		byType: make(map[reflect.Type]int),
		byName: make(map[string]int),
	}
}

// Register appends T to the table, identified solely by its reflect.Type.
// Two peers using Register must register in identical order to obtain
// matching MType assignments; prefer RegisterNamed when that can't be
// guaranteed.
func Register[T any](b *Builder, g Guarantee, ser func(T) ([]byte, error), de func([]byte) (T, error)) error {
	var zero T
	typ := reflect.TypeOf(zero)
	if _, ok := b.byType[typ]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, typ)
	}
	idx := len(b.entries)
	b.entries = append(b.entries, entry{
		typ:         typ,
		guarantee:   g,
		serialize:   wrapSerializer(ser),
		deserialize: wrapDeserializer(de),
	})
	b.byType[typ] = idx
	return nil
}

// RegisterNamed appends T identified by a stable string name. Build sorts
// named entries by name so two peers that register the same set of named
// types in different orders obtain identical MType assignments.
func RegisterNamed[T any](b *Builder, name string, g Guarantee, ser func(T) ([]byte, error), de func([]byte) (T, error)) error {
	if _, ok := b.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentifier, name)
	}
	var zero T
	typ := reflect.TypeOf(zero)
	idx := len(b.entries)
	b.entries = append(b.entries, entry{
		name:        name,
		typ:         typ,
		guarantee:   g,
		serialize:   wrapSerializer(ser),
		deserialize: wrapDeserializer(de),
		named:       true,
	})
	b.byName[name] = idx
	return nil
}

func wrapSerializer[T any](ser func(T) ([]byte, error)) Serializer {
	return func(v any) ([]byte, error) {
		t, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("registry: value of type %T does not match registered type %T", v, t)
		}
		return ser(t)
	}
}

func wrapDeserializer[T any](de func([]byte) (T, error)) Deserializer {
	return func(b []byte) (any, error) {
		return de(b)
	}
}

// ControlCodec bundles the serializer/deserializer pair for one of the
// four well-known control message types (Connection, Accept, Reject,
// Disconnect).
type ControlCodec[T any] struct {
	Serialize   func(T) ([]byte, error)
	Deserialize func([]byte) (T, error)
}

// Table is the immutable, finalized registry produced by Build.
type Table struct {
	entries []entry // indexed by MType; entries[0] is unused
}

// Build finalizes the registry. The four control message types occupy
// fixed slots 1-4, Ping occupies 5, Ack occupies 6; user types registered
// on b follow starting at 7 (named entries sorted by name first, then
// anonymous entries in registration order).
func Build[C, A, R, D any](b *Builder, conn ControlCodec[C], accept ControlCodec[A], reject ControlCodec[R], disconnect ControlCodec[D]) (*Table, error) {
	named := make([]entry, 0)
	anon := make([]entry, 0)
	for _, e := range b.entries {
		if e.named {
			named = append(named, e)
		} else {
			anon = append(anon, e)
		}
	}
	sort.Slice(named, func(i, j int) bool { return named[i].name < named[j].name })

	t := &Table{entries: make([]entry, firstUserMType)}
	t.entries[MTypeConnection] = entry{name: "Connection", guarantee: Reliable, serialize: wrapSerializer(conn.Serialize), deserialize: wrapDeserializer(conn.Deserialize)}
	t.entries[MTypeAccept] = entry{name: "Accept", guarantee: Reliable, serialize: wrapSerializer(accept.Serialize), deserialize: wrapDeserializer(accept.Deserialize)}
	t.entries[MTypeReject] = entry{name: "Reject", guarantee: Reliable, serialize: wrapSerializer(reject.Serialize), deserialize: wrapDeserializer(reject.Deserialize)}
	t.entries[MTypeDisconnect] = entry{name: "Disconnect", guarantee: Reliable, serialize: wrapSerializer(disconnect.Serialize), deserialize: wrapDeserializer(disconnect.Deserialize)}
	t.entries[MTypePing] = entry{name: "Ping", guarantee: Unreliable, serialize: wrapSerializer(func(b []byte) ([]byte, error) { return b, nil }), deserialize: wrapDeserializer(func(b []byte) ([]byte, error) { return b, nil })}
	t.entries[MTypeAck] = entry{name: "Ack", guarantee: Unreliable, serialize: wrapSerializer(func(b []byte) ([]byte, error) { return b, nil }), deserialize: wrapDeserializer(func(b []byte) ([]byte, error) { return b, nil })}

	for _, e := range named {
		t.entries = append(t.entries, e)
	}
	for _, e := range anon {
		t.entries = append(t.entries, e)
	}
	return t, nil
}

// Len reports how many MType slots exist, counting the unused slot 0 and
// the 6 control slots; the highest registered MType is Len()-1.
func (t *Table) Len() int {
	return len(t.entries)
}

// Guarantee returns the delivery guarantee of m, or an error if m is
// unregistered.
func (t *Table) Guarantee(m MType) (Guarantee, error) {
	e, err := t.lookup(m)
	if err != nil {
		return 0, err
	}
	return e.guarantee, nil
}

// Serialize encodes v using m's registered serializer.
func (t *Table) Serialize(m MType, v any) ([]byte, error) {
	e, err := t.lookup(m)
	if err != nil {
		return nil, err
	}
	return e.serialize(v)
}

// Deserialize decodes b using m's registered deserializer.
func (t *Table) Deserialize(m MType, b []byte) (any, error) {
	e, err := t.lookup(m)
	if err != nil {
		return nil, err
	}
	return e.deserialize(b)
}

func (t *Table) lookup(m MType) (entry, error) {
	if int(m) <= 0 || int(m) >= len(t.entries) {
		return entry{}, fmt.Errorf("%w: %d", ErrUnregisteredType, m)
	}
	e := t.entries[m]
	if e.serialize == nil {
		return entry{}, fmt.Errorf("%w: %d", ErrUnregisteredType, m)
	}
	return e, nil
}
