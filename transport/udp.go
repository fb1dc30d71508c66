package transport

import (
	"net"
	"time"
)

// readDeadline is how long a single Recv call blocks for before reporting
// ErrWouldBlock; it is small enough that the tick loop never stalls on an
// idle socket for long, following the teacher's pattern of binding one
// net.UDPConn per peer/server (source/server/server.go's net.ListenUDP).
const readDeadline = time.Millisecond

// UDPTransport is the default client-side Transport: one connected UDP
// socket to a single peer.
type UDPTransport struct {
	conn *net.UDPConn
	buf  []byte
}

// DialUDP opens a connected UDP socket to peer, bound to local (local may
// be the zero address to let the OS choose).
func DialUDP(local, peer *net.UDPAddr) (*UDPTransport, error) {
	conn, err := net.DialUDP("udp", local, peer)
	if err != nil {
		return nil, err
	}
	return &UDPTransport{conn: conn, buf: make([]byte, MaxPayload)}, nil
}

func (t *UDPTransport) Send(data []byte) error {
	_, err := t.conn.Write(data)
	return err
}

func (t *UDPTransport) Recv() ([]byte, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		return nil, err
	}
	n, err := t.conn.Read(t.buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ErrWouldBlock
		}
		return nil, err
	}
	out := make([]byte, n)
	copy(out, t.buf[:n])
	return out, nil
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

// UDPServerTransport is the default server-side ServerTransport: one
// listening UDP socket shared by every accepted peer, following the
// teacher's net.ListenUDP + WriteToUDP usage (source/server/server.go).
type UDPServerTransport struct {
	conn *net.UDPConn
	buf  []byte
}

// ListenUDP opens a listening UDP socket on local.
func ListenUDP(local *net.UDPAddr) (*UDPServerTransport, error) {
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, err
	}
	return &UDPServerTransport{conn: conn, buf: make([]byte, MaxPayload)}, nil
}

func (t *UDPServerTransport) SendTo(addr string, data []byte) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	_, err = t.conn.WriteToUDP(data, udpAddr)
	return err
}

func (t *UDPServerTransport) RecvFrom() (string, []byte, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		return "", nil, err
	}
	n, addr, err := t.conn.ReadFromUDP(t.buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return "", nil, ErrWouldBlock
		}
		return "", nil, err
	}
	out := make([]byte, n)
	copy(out, t.buf[:n])
	return addr.String(), out, nil
}

func (t *UDPServerTransport) Close() error {
	return t.conn.Close()
}
