// Package serialmux provides an abstraction over the vision module's
// USB-serial link with the ability for multiple clients to subscribe to
// decoded packets from the device and send requests over a single port.
//
// Unlike the UDP path, packets travel over serial unframed: the
// length-prefixed header is the only delimiter, so the mux re-syncs by
// sliding one byte forward whenever the stream stops parsing.
package serialmux

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/arclight-data/aimtrack/internal/monitoring"
	"github.com/arclight-data/aimtrack/internal/protocol"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// maxPending bounds the read accumulation buffer. The largest packet is
// an ObjectReport (518 bytes with header); anything beyond a few of
// those buffered means the stream is garbage.
const maxPending = 8 * 1024

// SerialMux multiplexes a single serial port to many packet subscribers.
type SerialMux struct {
	port         SerialPorter
	subscribers  map[string]chan protocol.Packet
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
	pending      []byte
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving decoded packets.
	// The returned ID identifies the channel when unsubscribing.
	Subscribe() (string, chan protocol.Packet)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// Send serializes the packet and writes it to the serial port.
	Send(protocol.Packet) error
	// Monitor reads the serial port and fans decoded packets out to
	// subscribers until the context is cancelled.
	Monitor(context.Context) error
	// Close closes all subscribed channels and the serial port.
	Close() error
}

// NewSerialMux creates a SerialMux instance backed by the given port.
func NewSerialMux(port SerialPorter) *SerialMux {
	return &SerialMux{
		port:        port,
		subscribers: make(map[string]chan protocol.Packet),
	}
}

func (s *SerialMux) Subscribe() (string, chan protocol.Packet) {
	id := uuid.NewString()
	ch := make(chan protocol.Packet, 16)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Send serializes the packet and writes it to the serial port. Writes
// are serialized so concurrent requests cannot interleave on the wire.
func (s *SerialMux) Send(pkt protocol.Packet) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	wire := pkt.Append(nil)
	n, err := s.port.Write(wire)
	if err != nil {
		return err
	}
	if n != len(wire) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads the serial port and fans decoded packets out to
// subscribers. It returns when the context is cancelled, the port
// fails, or Close is called.
func (s *SerialMux) Monitor(ctx context.Context) error {
	chunkChan := make(chan []byte)
	readErrChan := make(chan error, 1)

	// Reads block with no deadline support across platforms, so they
	// live on their own goroutine; the outer loop stays responsive to
	// context cancellation.
	go func() {
		defer close(chunkChan)
		buf := make([]byte, 1024)
		for {
			n, err := s.port.Read(buf)
			if err != nil {
				select {
				case readErrChan <- err:
				case <-ctx.Done():
				}
				return
			}
			if n == 0 {
				continue
			}
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunkChan <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrChan:
			s.closingMu.Lock()
			closing := s.closing
			s.closingMu.Unlock()
			if closing {
				return nil
			}
			return err

		case chunk, ok := <-chunkChan:
			if !ok {
				return nil
			}
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			for _, pkt := range s.extractPackets(chunk) {
				s.broadcast(pkt)
			}
		}
	}
}

// extractPackets appends a chunk to the pending buffer and pulls out as
// many complete packets as it holds. With no framing on the serial
// link, a header is trusted only when its type tag is known and its
// declared length matches the canonical length for that type; anything
// else slides the buffer forward one byte until the stream re-syncs.
func (s *SerialMux) extractPackets(chunk []byte) []protocol.Packet {
	s.pending = append(s.pending, chunk...)
	if len(s.pending) > maxPending {
		monitoring.Debugf("serial stream unsynced, discarding %d buffered bytes", len(s.pending))
		s.pending = s.pending[:0]
		return nil
	}

	var pkts []protocol.Packet
	for len(s.pending) >= protocol.HEADER_SIZE {
		declared := 2 * int(binary.LittleEndian.Uint16(s.pending[0:2]))
		ty, err := protocol.PacketTypeFromByte(s.pending[2])
		if err == nil {
			want, ok := protocol.PayloadLen(ty)
			if !ok || declared != want {
				err = protocol.ErrUnrecognizedPacketID
			}
		}
		if err != nil {
			s.pending = s.pending[1:]
			continue
		}

		if len(s.pending) < protocol.HEADER_SIZE+declared {
			break // incomplete packet, wait for more bytes
		}

		cur := protocol.NewCursor(s.pending)
		pkt, err := protocol.ParsePacket(cur)
		if err != nil {
			// Plausible header but bad payload (e.g. an invalid port
			// byte): still treated as lost sync.
			monitoring.Debugf("serial stream resync: %v", err)
			s.pending = s.pending[1:]
			continue
		}
		s.pending = s.pending[len(s.pending)-cur.Remaining():]
		pkts = append(pkts, pkt)
	}
	return pkts
}

// broadcast delivers a packet to every subscriber without blocking the
// read loop; a full subscriber channel misses the packet.
func (s *SerialMux) broadcast(pkt protocol.Packet) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- pkt:
		default:
		}
	}
}

func (s *SerialMux) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}
