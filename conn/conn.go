package conn

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ventosilenzioso/carrierpigeon/ping"
	"github.com/ventosilenzioso/carrierpigeon/registry"
	"github.com/ventosilenzioso/carrierpigeon/reliable"
	"github.com/ventosilenzioso/carrierpigeon/transport"
	"github.com/ventosilenzioso/carrierpigeon/wire"
)

// Received is one fully-deserialized application message drained by a tick,
// ready for the caller to type-assert Value against its registered type.
type Received struct {
	MType registry.MType
	Value any
}

// Conn is the client side of the connection state machine: one transport,
// one reliable.System, one ping.System, and a Status that the caller polls
// after every Tick.
type Conn[A, R, D any] struct {
	table     *registry.Table
	transport transport.Transport
	reliable  *reliable.System
	ping      *ping.System
	log       *zap.Logger

	status Status[A, R, D]

	inbound []Received
}

// New returns a Conn in NotConnected status, bound to table. Subsystems are
// (re)constructed by Connect.
func New[A, R, D any](table *registry.Table, log *zap.Logger) *Conn[A, R, D] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Conn[A, R, D]{
		table: table,
		log:   log,
	}
}

// Status returns the connection's current status.
func (c *Conn[A, R, D]) Status() Status[A, R, D] {
	return c.status
}

// Connect opens the connection over t: it resets every subsystem, enters
// Connecting, and sends conMsg reliably on the Connection control MType.
// Connect only succeeds from NotConnected.
func (c *Conn[A, R, D]) Connect(t transport.Transport, conMsg any, pingInterval, pingMaxAge time.Duration) error {
	if c.status.Kind != NotConnected {
		return fmt.Errorf("%w: connect called in %s", ErrInvalidState, c.status.Kind)
	}
	c.transport = t
	c.reliable = reliable.NewSystem(c.table)
	c.ping = ping.NewSystem(pingInterval, pingMaxAge)
	c.status = Status[A, R, D]{Kind: Connecting}
	c.inbound = nil

	if _, err := c.sendControl(registry.MTypeConnection, conMsg); err != nil {
		return err
	}
	c.log.Info("connecting", zap.String("status", c.status.Kind.String()))
	return nil
}

// Send serializes v using m's registered codec and hands the resulting
// datagram to the transport. Valid in Connected, and in Connecting for the
// connection message Connect already sends internally. On success it
// returns the AckNum issued to the message.
func (c *Conn[A, R, D]) Send(m registry.MType, v any) (uint16, error) {
	if c.status.Kind != Connected && c.status.Kind != Connecting {
		return 0, fmt.Errorf("%w: send called in %s", ErrInvalidState, c.status.Kind)
	}
	return c.send(m, v)
}

func (c *Conn[A, R, D]) sendControl(m registry.MType, v any) (uint16, error) {
	return c.send(m, v)
}

func (c *Conn[A, R, D]) send(m registry.MType, v any) (uint16, error) {
	payload, err := c.table.Serialize(m, v)
	if err != nil {
		return 0, fmt.Errorf("conn: serialize MType %d: %w", m, err)
	}
	g, err := c.table.Guarantee(m)
	if err != nil {
		return 0, err
	}
	h := c.reliable.NextSendHeader(m)
	c.reliable.Save(h, g, payload)

	buf := h.Encode()
	buf = append(buf, payload...)
	if err := c.transport.Send(buf); err != nil {
		c.onTransportError(err)
		return h.SenderAckNum, nil
	}
	return h.SenderAckNum, nil
}

// Disconnect sends d reliably on the Disconnect control MType and enters
// Disconnecting, tracking the AckNum so Tick can observe it being retired.
func (c *Conn[A, R, D]) Disconnect(d D) error {
	if c.status.Kind != Connected {
		return fmt.Errorf("%w: disconnect called in %s", ErrInvalidState, c.status.Kind)
	}
	ack, err := c.send(registry.MTypeDisconnect, d)
	if err != nil {
		return err
	}
	c.status = Status[A, R, D]{Kind: Disconnecting, DisconnectAck: ack}
	return nil
}

// PollReceived returns every application message this Tick drained, grouped
// by the datagram that made them deliverable (in arrival order), and
// MType-ascending within each group.
func (c *Conn[A, R, D]) PollReceived() []Received {
	return c.inbound
}

// Tick performs one frame: clear the inbound buffer, advertise acks,
// ping, resend, drain the transport, and advance status.
func (c *Conn[A, R, D]) Tick(now time.Time) {
	c.inbound = nil

	if c.status.Kind == NotConnected {
		return
	}

	c.emitAckIfPending()
	c.emitPingIfDue(now)
	c.retransmitDue()
	c.drainTransport(now)
	c.advanceStatus()
}

func (c *Conn[A, R, D]) emitAckIfPending() {
	if !c.reliable.HasPendingAckAdvertisement() {
		return
	}
	payload := c.reliable.EncodeAckMsg()
	h := c.reliable.NextSendHeader(registry.MTypeAck)
	buf := h.Encode()
	buf = append(buf, payload...)
	if err := c.transport.Send(buf); err != nil {
		c.onTransportError(err)
	}
}

func (c *Conn[A, R, D]) emitPingIfDue(now time.Time) {
	msg, ok := c.ping.DuePing(now)
	if !ok {
		return
	}
	w := wire.NewWriter()
	w.Byte(byte(msg.Kind))
	w.Uint32(msg.Num)
	if _, err := c.send(registry.MTypePing, w.Take()); err != nil {
		c.log.Warn("ping send failed", zap.Error(err))
	}
}

func (c *Conn[A, R, D]) retransmitDue() {
	for _, saved := range c.reliable.DueResends() {
		buf := saved.Header.Encode()
		buf = append(buf, saved.Payload...)
		if err := c.transport.Send(buf); err != nil {
			c.onTransportError(err)
			return
		}
	}
}

func (c *Conn[A, R, D]) drainTransport(now time.Time) {
	for {
		buf, err := c.transport.Recv()
		if err != nil {
			if err == transport.ErrWouldBlock {
				return
			}
			c.onTransportError(err)
			return
		}
		c.handleDatagram(buf, now)
	}
}

func (c *Conn[A, R, D]) handleDatagram(buf []byte, now time.Time) {
	h, payload, err := wire.Decode(buf)
	if err != nil {
		c.log.Debug("dropping malformed datagram", zap.Error(err))
		return
	}
	m := registry.MType(h.MType)

	switch m {
	case registry.MTypeAccept:
		if c.status.Kind != Connecting {
			return
		}
		v, err := c.table.Deserialize(m, payload)
		if err != nil {
			c.log.Debug("dropping undeserializable Accept", zap.Error(err))
			return
		}
		accept, ok := v.(A)
		if !ok {
			c.log.Debug("dropping Accept of mismatched type")
			return
		}
		c.status = Status[A, R, D]{Kind: Accepted, AcceptMsg: accept}
	case registry.MTypeReject:
		if c.status.Kind != Connecting {
			return
		}
		v, err := c.table.Deserialize(m, payload)
		if err != nil {
			c.log.Debug("dropping undeserializable Reject", zap.Error(err))
			return
		}
		reject, ok := v.(R)
		if !ok {
			c.log.Debug("dropping Reject of mismatched type")
			return
		}
		c.status = Status[A, R, D]{Kind: Rejected, RejectMsg: reject}
	case registry.MTypeDisconnect:
		if c.status.Kind != Connected {
			return
		}
		v, err := c.table.Deserialize(m, payload)
		if err != nil {
			c.log.Debug("dropping undeserializable Disconnect", zap.Error(err))
			return
		}
		disc, ok := v.(D)
		if !ok {
			c.log.Debug("dropping Disconnect of mismatched type")
			return
		}
		c.status = Status[A, R, D]{Kind: Disconnected, DisconnectMsg: disc}
	case registry.MTypePing:
		c.handlePing(payload, now)
	case registry.MTypeAck:
		if err := c.reliable.ApplyAckMsg(payload); err != nil {
			c.log.Debug("dropping malformed ack message", zap.Error(err))
		}
	default:
		if err := c.reliable.PushReceived(h, payload); err != nil {
			c.log.Debug("dropping unregistered MType", zap.Uint16("mtype", h.MType))
			return
		}
	}

	for _, r := range c.reliable.DrainReady() {
		v, err := c.table.Deserialize(r.MType, r.Payload)
		if err != nil {
			c.log.Debug("dropping undeserializable message", zap.Error(err))
			continue
		}
		c.inbound = append(c.inbound, Received{MType: r.MType, Value: v})
	}
}

func (c *Conn[A, R, D]) handlePing(payload []byte, now time.Time) {
	r := wire.NewReader(payload)
	kindByte, err := r.Byte()
	if err != nil {
		return
	}
	num, err := r.Uint32()
	if err != nil {
		return
	}
	msg := ping.Message{Kind: ping.Kind(kindByte), Num: num}

	switch msg.Kind {
	case ping.Req:
		res := c.ping.HandleReq(msg)
		w := wire.NewWriter()
		w.Byte(byte(res.Kind))
		w.Uint32(res.Num)
		if _, err := c.send(registry.MTypePing, w.Take()); err != nil {
			c.log.Warn("ping response send failed", zap.Error(err))
		}
	case ping.Res:
		c.ping.HandleRes(msg, now)
	}
}

// RTT returns the current smoothed round-trip-time estimate.
func (c *Conn[A, R, D]) RTT() (time.Duration, bool) {
	return c.ping.RTT()
}

func (c *Conn[A, R, D]) advanceStatus() {
	switch c.status.Kind {
	case Accepted:
		c.status = Status[A, R, D]{Kind: Connected}
	case Rejected:
		c.status = Status[A, R, D]{Kind: NotConnected}
	case Disconnecting:
		if !c.reliable.IsPending(c.status.DisconnectAck) {
			c.status = Status[A, R, D]{Kind: NotConnected}
		}
	}
}

func (c *Conn[A, R, D]) onTransportError(err error) {
	switch c.status.Kind {
	case Connected:
		c.status = Status[A, R, D]{Kind: Dropped, Err: err}
	case Connecting, Accepted, Rejected:
		c.status = Status[A, R, D]{Kind: ConnectionFailed, Err: err}
	case Disconnecting:
		c.status = Status[A, R, D]{Kind: NotConnected}
	}
	c.log.Warn("transport error", zap.Error(err), zap.String("status", c.status.Kind.String()))
}
