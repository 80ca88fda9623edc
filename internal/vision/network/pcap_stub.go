//go:build !pcap
// +build !pcap

package network

import (
	"context"
	"fmt"
)

// ReplayPCAPFile is a stub implementation when PCAP support is disabled.
// Build with -tags=pcap to enable replaying captured device traffic.
func ReplayPCAPFile(ctx context.Context, pcapFile string, udpPort int, stats PacketStatsInterface, handler Handler) error {
	return fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP replay")
}
