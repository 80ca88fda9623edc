//go:build pcap
// +build pcap

package network

import (
	"context"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/arclight-data/aimtrack/internal/monitoring"
	"github.com/arclight-data/aimtrack/internal/protocol"
	"github.com/arclight-data/aimtrack/internal/slip"
)

// ReplayPCAPFile feeds captured device UDP traffic through the same
// SLIP/packet decode path the live listener uses. Only datagrams on
// udpPort are considered. This function is only available when building
// with the 'pcap' build tag.
func ReplayPCAPFile(ctx context.Context, pcapFile string, udpPort int, stats PacketStatsInterface, handler Handler) error {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter %q: %w", filterStr, err)
	}

	if stats == nil {
		stats = &noopStats{}
	}

	decoder := slip.NewDecoder()
	source := gopacket.NewPacketSource(handle, handle.LinkType())
	datagrams := 0

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("PCAP replay stopping due to context cancellation (%d datagrams)", datagrams)
			return ctx.Err()
		case packet, ok := <-source.Packets():
			if !ok || packet == nil {
				monitoring.Logf("PCAP replay complete: %d datagrams processed", datagrams)
				return nil
			}

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp := udpLayer.(*layers.UDP)
			datagrams++
			stats.AddDatagram(len(udp.Payload))

			decoder.Feed(udp.Payload)
			for {
				frame := decoder.Next()
				if frame == nil {
					break
				}
				pkt, err := protocol.Parse(frame)
				if err != nil {
					stats.AddDecodeError()
					continue
				}
				stats.AddPacket()
				if handler != nil {
					handler.HandlePacket(pkt, &net.UDPAddr{Port: int(udp.SrcPort)})
				}
			}
		}
	}
}
