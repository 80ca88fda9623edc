package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arclight-data/aimtrack/internal/protocol"
)

// fakeSender records sent packets and can answer them like a device
// would: echoing the request id on the scripted response.
type fakeSender struct {
	mu      sync.Mutex
	sent    []protocol.Packet
	respond func(protocol.Packet) *protocol.Packet
	deliver func(protocol.Packet)
	err     error
}

func (f *fakeSender) Send(pkt protocol.Packet) error {
	f.mu.Lock()
	f.sent = append(f.sent, pkt)
	respond := f.respond
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if respond != nil {
		if resp := respond(pkt); resp != nil {
			go f.deliver(*resp)
		}
	}
	return nil
}

func (f *fakeSender) sentPackets() []protocol.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Packet, len(f.sent))
	copy(out, f.sent)
	return out
}

func TestReadRegisterRoundTrip(t *testing.T) {
	sender := &fakeSender{}
	client := NewClient(sender)
	sender.deliver = func(pkt protocol.Packet) { client.HandlePacket(pkt, nil) }
	sender.respond = func(req protocol.Packet) *protocol.Packet {
		rr, ok := req.Data.(protocol.ReadRegister)
		if !ok {
			return nil
		}
		return &protocol.Packet{ID: req.ID, Data: protocol.ReadRegisterResponse{
			Bank: rr.Bank, Address: rr.Address, Data: 0x47,
		}}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := client.ReadRegister(ctx, protocol.PortWF, 0, 0x02)
	if err != nil {
		t.Fatalf("ReadRegister failed: %v", err)
	}
	if got != 0x47 {
		t.Errorf("register value = %#02x, want 0x47", got)
	}
}

func TestReadConfigTimeout(t *testing.T) {
	sender := &fakeSender{} // never responds
	client := NewClient(sender)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.ReadConfig(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}

	// The pending entry must be cleaned up after the timeout.
	client.mu.Lock()
	n := len(client.pending)
	client.mu.Unlock()
	if n != 0 {
		t.Errorf("%d pending requests after timeout, want 0", n)
	}
}

func TestResponseIDMismatchIgnored(t *testing.T) {
	sender := &fakeSender{}
	client := NewClient(sender)
	sender.deliver = func(pkt protocol.Packet) { client.HandlePacket(pkt, nil) }
	sender.respond = func(req protocol.Packet) *protocol.Packet {
		// Respond with a different id; the waiter must not match it.
		return &protocol.Packet{ID: req.ID + 1, Data: protocol.ReadConfigResponse{}}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.ReadConfig(ctx); err == nil {
		t.Fatal("expected timeout when response id does not match")
	}
}

func TestTelemetryRoutedToReportHandler(t *testing.T) {
	client := NewClient(&fakeSender{})

	got := make(chan protocol.Packet, 1)
	client.SetReportHandler(func(pkt protocol.Packet) { got <- pkt })

	client.HandlePacket(protocol.Packet{ID: 3, Data: protocol.AccelReport{}}, nil)

	select {
	case pkt := <-got:
		if _, ok := pkt.Data.(protocol.AccelReport); !ok {
			t.Errorf("report handler got %T, want AccelReport", pkt.Data)
		}
	default:
		t.Fatal("telemetry packet did not reach the report handler")
	}
}

func TestStreamCommands(t *testing.T) {
	sender := &fakeSender{}
	client := NewClient(sender)

	if err := client.StartStream(4, protocol.StreamAccel|protocol.StreamCombinedMarkers); err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}
	if err := client.StopStream(4, protocol.StreamAccel); err != nil {
		t.Fatalf("StopStream failed: %v", err)
	}

	sent := sender.sentPackets()
	if len(sent) != 2 {
		t.Fatalf("sent %d packets, want 2", len(sent))
	}
	start := sent[0].Data.(protocol.StreamUpdate)
	if sent[0].ID != 4 || !start.Active || start.Mask != protocol.StreamAccel|protocol.StreamCombinedMarkers {
		t.Errorf("start packet = %+v id %d", start, sent[0].ID)
	}
	stop := sent[1].Data.(protocol.StreamUpdate)
	if stop.Active || stop.Mask != protocol.StreamAccel {
		t.Errorf("stop packet = %+v", stop)
	}
}

func TestRequestIDsRotate(t *testing.T) {
	sender := &fakeSender{}
	client := NewClient(sender)
	sender.deliver = func(pkt protocol.Packet) { client.HandlePacket(pkt, nil) }
	sender.respond = func(req protocol.Packet) *protocol.Packet {
		return &protocol.Packet{ID: req.ID, Data: protocol.ReadConfigResponse{}}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seen := map[uint8]bool{}
	for i := 0; i < 3; i++ {
		if _, err := client.ReadConfig(ctx); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	for _, pkt := range sender.sentPackets() {
		if seen[pkt.ID] {
			t.Errorf("request id %d reused while rotating", pkt.ID)
		}
		seen[pkt.ID] = true
		if pkt.ID == 0 {
			t.Error("request id 0 allocated; reserved for fire-and-forget")
		}
	}
}
