// Package network carries vision-module packets over UDP. Datagrams
// from the device hold SLIP-framed packets; the listener unframes and
// decodes them, and the sender frames and transmits host requests.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/arclight-data/aimtrack/internal/monitoring"
	"github.com/arclight-data/aimtrack/internal/protocol"
	"github.com/arclight-data/aimtrack/internal/slip"
)

// PacketStatsInterface provides packet statistics management.
type PacketStatsInterface interface {
	AddDatagram(bytes int)
	AddPacket()
	AddDecodeError()
	LogStats()
}

// Handler receives each decoded packet along with the device address it
// came from. Handlers run on the listener goroutine and must not block.
type Handler interface {
	HandlePacket(pkt protocol.Packet, from *net.UDPAddr)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(pkt protocol.Packet, from *net.UDPAddr)

func (f HandlerFunc) HandlePacket(pkt protocol.Packet, from *net.UDPAddr) { f(pkt, from) }

// UDPListener receives SLIP-framed vision-module packets from UDP and
// dispatches decoded packets to a handler.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	conn        *net.UDPConn
	stats       PacketStatsInterface
	handler     Handler
	decoder     *slip.Decoder
	ready       chan struct{}
	startErr    error
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       PacketStatsInterface
	Handler     Handler
}

// NewUDPListener creates a new UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	// Provide a no-op stats implementation when none is supplied to
	// avoid nil checks in the packet handling path.
	var stats PacketStatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = &noopStats{}
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		stats:       stats,
		handler:     config.Handler,
		decoder:     slip.NewDecoder(),
		ready:       make(chan struct{}),
	}
}

// noopStats is a PacketStatsInterface implementation that does nothing.
type noopStats struct{}

func (n *noopStats) AddDatagram(bytes int) {}
func (n *noopStats) AddPacket()            {}
func (n *noopStats) AddDecodeError()       {}
func (n *noopStats) LogStats()             {}

// LocalAddr returns the bound listen address once Start has opened the
// socket. It blocks until the socket is ready or the context is done,
// and reports the bind error if Start failed to open the socket.
func (l *UDPListener) LocalAddr(ctx context.Context) (net.Addr, error) {
	select {
	case <-l.ready:
		if l.startErr != nil {
			return nil, l.startErr
		}
		return l.conn.LocalAddr(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start begins listening for UDP datagrams and processing them. It
// returns when the context is cancelled or the socket fails.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		l.startErr = fmt.Errorf("failed to resolve UDP address: %w", err)
		close(l.ready)
		return l.startErr
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		l.startErr = fmt.Errorf("failed to listen on UDP address: %w", err)
		close(l.ready)
		return l.startErr
	}
	l.conn = conn
	close(l.ready)
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Warning: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	monitoring.Logf("UDP listener started on %s", conn.LocalAddr())

	go l.startStatsLogging(ctx)

	buffer := make([]byte, 2048) // device datagrams are well under one MTU

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// Short read deadline so context cancellation is noticed.
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, from, err := conn.ReadFromUDP(buffer)
			if err != nil {
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				monitoring.Logf("UDP read error: %v", err)
				continue
			}

			l.handleDatagram(buffer[:n], from)
		}
	}
}

// handleDatagram feeds one datagram through the SLIP decoder and parses
// every complete frame it yields. A frame that fails to decode is
// counted and dropped; telemetry streaming is best effort.
func (l *UDPListener) handleDatagram(data []byte, from *net.UDPAddr) {
	l.stats.AddDatagram(len(data))

	dropped := l.decoder.Dropped()
	l.decoder.Feed(data)

	for {
		frame := l.decoder.Next()
		if frame == nil {
			break
		}
		pkt, err := protocol.Parse(frame)
		if err != nil {
			l.stats.AddDecodeError()
			monitoring.Debugf("dropping undecodable frame from %v: %v", from, err)
			continue
		}
		l.stats.AddPacket()
		if l.handler != nil {
			l.handler.HandlePacket(pkt, from)
		}
	}

	if d := l.decoder.Dropped(); d != dropped {
		l.stats.AddDecodeError()
		monitoring.Debugf("SLIP decoder dropped %d frame(s) from %v", d-dropped, from)
	}
}

// startStatsLogging periodically logs packet statistics. An initial
// report fires shortly after startup to avoid a long first silence.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// Close closes the UDP listener and releases resources.
func (l *UDPListener) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
