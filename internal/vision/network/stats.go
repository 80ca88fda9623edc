package network

import (
	"sync/atomic"

	"github.com/arclight-data/aimtrack/internal/monitoring"
)

// PacketStats tracks datagram and packet counters for the listener.
// All methods are safe for concurrent use.
type PacketStats struct {
	datagrams    atomic.Uint64
	bytes        atomic.Uint64
	packets      atomic.Uint64
	decodeErrors atomic.Uint64
}

func NewPacketStats() *PacketStats {
	return &PacketStats{}
}

func (s *PacketStats) AddDatagram(n int) {
	s.datagrams.Add(1)
	s.bytes.Add(uint64(n))
}

func (s *PacketStats) AddPacket() {
	s.packets.Add(1)
}

func (s *PacketStats) AddDecodeError() {
	s.decodeErrors.Add(1)
}

// Snapshot returns the current counter values.
func (s *PacketStats) Snapshot() (datagrams, bytes, packets, decodeErrors uint64) {
	return s.datagrams.Load(), s.bytes.Load(), s.packets.Load(), s.decodeErrors.Load()
}

// LogStats writes a one-line summary of the counters.
func (s *PacketStats) LogStats() {
	datagrams, bytes, packets, decodeErrors := s.Snapshot()
	monitoring.Logf("vision UDP stats: %d datagrams (%d bytes), %d packets decoded, %d decode errors",
		datagrams, bytes, packets, decodeErrors)
}
