package network

import (
	"fmt"
	"net"

	"github.com/valyala/bytebufferpool"

	"github.com/arclight-data/aimtrack/internal/protocol"
	"github.com/arclight-data/aimtrack/internal/slip"
)

// Sender transmits host requests to the device as SLIP-framed UDP
// datagrams, one packet per datagram. Serialization buffers come from a
// pool so the steady-state write path does not allocate.
type Sender struct {
	conn *net.UDPConn
}

// NewSender dials the device's control address.
func NewSender(address string) (*Sender, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve device address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial device: %w", err)
	}
	return &Sender{conn: conn}, nil
}

// Send serializes, frames and transmits one packet.
func (s *Sender) Send(pkt protocol.Packet) error {
	raw := bytebufferpool.Get()
	defer bytebufferpool.Put(raw)
	raw.B = pkt.Append(raw.B)

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.B = slip.AppendFrame(buf.B, raw.B)

	if _, err := s.conn.Write(buf.B); err != nil {
		return fmt.Errorf("failed to send %v packet: %w", pkt.Type(), err)
	}
	return nil
}

// Close releases the underlying socket.
func (s *Sender) Close() error {
	return s.conn.Close()
}
