// Package device exposes typed host-side operations on a vision module:
// register peek/poke, configuration read/write, one-shot object reports
// and stream subscriptions. It correlates responses to requests by the
// packet id the device echoes back, independent of which transport
// (UDP or USB-serial) carries the packets.
package device

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/arclight-data/aimtrack/internal/monitoring"
	"github.com/arclight-data/aimtrack/internal/protocol"
)

// Sender writes one packet to the device. Both network.Sender and
// serialmux.SerialMux satisfy this.
type Sender interface {
	Send(protocol.Packet) error
}

// ReportHandler receives telemetry packets (reports that are not a
// reply to a pending request). It runs on the transport's receive
// goroutine and must not block.
type ReportHandler func(pkt protocol.Packet)

// Client drives a single vision module over a Sender. Incoming packets
// are fed to HandlePacket by the transport; everything else is
// synchronous request/response.
type Client struct {
	sender Sender

	mu      sync.Mutex
	nextID  uint8
	pending map[uint8]pendingRequest
	reports ReportHandler
}

type pendingRequest struct {
	want protocol.PacketType
	ch   chan protocol.Packet
}

// NewClient creates a client that sends requests through sender.
func NewClient(sender Sender) *Client {
	return &Client{
		sender:  sender,
		nextID:  1,
		pending: make(map[uint8]pendingRequest),
	}
}

// SetReportHandler installs the handler for unsolicited telemetry.
func (c *Client) SetReportHandler(h ReportHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = h
}

// HandlePacket routes one incoming packet: replies complete their
// pending request, everything else goes to the report handler. The
// second parameter exists to satisfy network.Handler and may be nil.
func (c *Client) HandlePacket(pkt protocol.Packet, _ *net.UDPAddr) {
	c.mu.Lock()
	req, ok := c.pending[pkt.ID]
	if ok && pkt.Type() == req.want {
		delete(c.pending, pkt.ID)
		c.mu.Unlock()
		// Buffered channel; the waiter may have timed out already.
		select {
		case req.ch <- pkt:
		default:
		}
		return
	}
	reports := c.reports
	c.mu.Unlock()

	if reports != nil {
		reports(pkt)
		return
	}
	monitoring.Debugf("discarding unhandled %v packet id %d", pkt.Type(), pkt.ID)
}

// allocID reserves a request id with a waiter for the expected response
// type. Ids rotate through 1..255; 0 is left to fire-and-forget
// commands so their echoes can never complete a pending request.
func (c *Client) allocID(want protocol.PacketType) (uint8, chan protocol.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < 255; i++ {
		id := c.nextID
		c.nextID++
		if c.nextID == 0 {
			c.nextID = 1
		}
		if _, used := c.pending[id]; used {
			continue
		}
		ch := make(chan protocol.Packet, 1)
		c.pending[id] = pendingRequest{want: want, ch: ch}
		return id, ch, nil
	}
	return 0, nil, fmt.Errorf("device: all request ids in flight")
}

func (c *Client) cancelID(id uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

// roundTrip sends a request and waits for the matching response.
func (c *Client) roundTrip(ctx context.Context, data protocol.PacketData, want protocol.PacketType) (protocol.Packet, error) {
	id, ch, err := c.allocID(want)
	if err != nil {
		return protocol.Packet{}, err
	}

	if err := c.sender.Send(protocol.Packet{ID: id, Data: data}); err != nil {
		c.cancelID(id)
		return protocol.Packet{}, err
	}

	select {
	case pkt := <-ch:
		return pkt, nil
	case <-ctx.Done():
		c.cancelID(id)
		return protocol.Packet{}, fmt.Errorf("device: awaiting %v for %v request: %w", want, data.Type(), ctx.Err())
	}
}

// ReadRegister reads one register byte (Peek) from the selected sensor.
func (c *Client) ReadRegister(ctx context.Context, port protocol.Port, bank, address uint8) (uint8, error) {
	pkt, err := c.roundTrip(ctx,
		protocol.ReadRegister{Port: port, Bank: bank, Address: address},
		protocol.TypeReadRegisterResponse)
	if err != nil {
		return 0, err
	}
	resp := pkt.Data.(protocol.ReadRegisterResponse)
	if resp.Bank != bank || resp.Address != address {
		return 0, fmt.Errorf("device: register response for %d:%#02x, requested %d:%#02x",
			resp.Bank, resp.Address, bank, address)
	}
	return resp.Data, nil
}

// WriteRegister writes one register byte (Poke). The device does not
// acknowledge writes.
func (c *Client) WriteRegister(port protocol.Port, bank, address, data uint8) error {
	return c.sender.Send(protocol.Packet{Data: protocol.WriteRegister{
		Port: port, Bank: bank, Address: address, Data: data,
	}})
}

// ReadConfig fetches the device's general configuration.
func (c *Client) ReadConfig(ctx context.Context) (protocol.GeneralConfig, error) {
	pkt, err := c.roundTrip(ctx, protocol.ReadConfig{}, protocol.TypeReadConfigResponse)
	if err != nil {
		return protocol.GeneralConfig{}, err
	}
	return pkt.Data.(protocol.ReadConfigResponse).Config, nil
}

// WriteConfig pushes a new general configuration. Unacknowledged; call
// ReadConfig to verify and FlashSettings to persist.
func (c *Client) WriteConfig(cfg protocol.GeneralConfig) error {
	return c.sender.Send(protocol.Packet{Data: protocol.WriteConfig{Config: cfg}})
}

// FlashSettings asks the device to persist its configuration to
// non-volatile storage.
func (c *Client) FlashSettings() error {
	return c.sender.Send(protocol.Packet{Data: protocol.FlashSettings{}})
}

// RequestObjectReport fetches one-shot object detection data.
func (c *Client) RequestObjectReport(ctx context.Context) (protocol.ObjectReport, error) {
	pkt, err := c.roundTrip(ctx, protocol.ObjectReportRequest{}, protocol.TypeObjectReport)
	if err != nil {
		return protocol.ObjectReport{}, err
	}
	return pkt.Data.(protocol.ObjectReport), nil
}

// StartStream tells the device to begin continuous emission of the
// report types in mask, keyed to the given subscription id.
func (c *Client) StartStream(id uint8, mask uint8) error {
	return c.sender.Send(protocol.Packet{ID: id, Data: protocol.StreamUpdate{Mask: mask, Active: true}})
}

// StopStream disables the report types in mask for a subscription id.
func (c *Client) StopStream(id uint8, mask uint8) error {
	return c.sender.Send(protocol.Packet{ID: id, Data: protocol.StreamUpdate{Mask: mask, Active: false}})
}
