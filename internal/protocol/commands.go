package protocol

import "encoding/binary"

// WriteRegister (Poke) writes one byte to a device-internal register on
// the selected sensor.
type WriteRegister struct {
	Port    Port
	Bank    uint8
	Address uint8
	Data    uint8
}

func (WriteRegister) Type() PacketType { return TypeWriteRegister }
func (WriteRegister) payloadLen() int  { return REGISTER_OP_SIZE }
func (WriteRegister) sealed()          {}

func (w WriteRegister) appendPayload(dst []byte) []byte {
	return append(dst, byte(w.Port), w.Bank, w.Address, w.Data)
}

func parseWriteRegister(c *Cursor) (WriteRegister, error) {
	b, ok := c.Take(REGISTER_OP_SIZE)
	if !ok {
		return WriteRegister{}, eof(TypeWriteRegister)
	}
	port, err := portFromByte(b[0])
	if err != nil {
		return WriteRegister{}, err
	}
	return WriteRegister{Port: port, Bank: b[1], Address: b[2], Data: b[3]}, nil
}

// ReadRegister (Peek) requests the value of a device-internal register.
// The fourth payload byte is padding.
type ReadRegister struct {
	Port    Port
	Bank    uint8
	Address uint8
}

func (ReadRegister) Type() PacketType { return TypeReadRegister }
func (ReadRegister) payloadLen() int  { return REGISTER_OP_SIZE }
func (ReadRegister) sealed()          {}

func (r ReadRegister) appendPayload(dst []byte) []byte {
	return append(dst, byte(r.Port), r.Bank, r.Address, 0)
}

func parseReadRegister(c *Cursor) (ReadRegister, error) {
	b, ok := c.Take(REGISTER_OP_SIZE)
	if !ok {
		return ReadRegister{}, eof(TypeReadRegister)
	}
	port, err := portFromByte(b[0])
	if err != nil {
		return ReadRegister{}, err
	}
	return ReadRegister{Port: port, Bank: b[1], Address: b[2]}, nil
}

// ReadRegisterResponse carries the register value back to the host. The
// device does not echo the port; the fourth payload byte is padding.
type ReadRegisterResponse struct {
	Bank    uint8
	Address uint8
	Data    uint8
}

func (ReadRegisterResponse) Type() PacketType { return TypeReadRegisterResponse }
func (ReadRegisterResponse) payloadLen() int  { return REGISTER_OP_SIZE }
func (ReadRegisterResponse) sealed()          {}

func (r ReadRegisterResponse) appendPayload(dst []byte) []byte {
	return append(dst, r.Bank, r.Address, r.Data, 0)
}

func parseReadRegisterResponse(c *Cursor) (ReadRegisterResponse, error) {
	b, ok := c.Take(REGISTER_OP_SIZE)
	if !ok {
		return ReadRegisterResponse{}, eof(TypeReadRegisterResponse)
	}
	return ReadRegisterResponse{Bank: b[0], Address: b[1], Data: b[2]}, nil
}

// GeneralConfig is the whole-device configuration blob: the impact
// detection threshold and the accelerometer output data rate in Hz.
// Wire layout is 4 bytes: threshold, ODR low, ODR high, pad.
type GeneralConfig struct {
	ImpactThreshold uint8
	AccelODR        uint16
}

func parseGeneralConfig(c *Cursor, ty PacketType) (GeneralConfig, error) {
	b, ok := c.Take(GENERAL_CONFIG_SIZE)
	if !ok {
		return GeneralConfig{}, eof(ty)
	}
	return GeneralConfig{
		ImpactThreshold: b[0],
		AccelODR:        binary.LittleEndian.Uint16(b[1:3]),
	}, nil
}

func (g GeneralConfig) appendTo(dst []byte) []byte {
	return append(dst, g.ImpactThreshold, byte(g.AccelODR), byte(g.AccelODR>>8), 0)
}

// WriteConfig pushes a new GeneralConfig to the device.
type WriteConfig struct {
	Config GeneralConfig
}

func (WriteConfig) Type() PacketType { return TypeWriteConfig }
func (WriteConfig) payloadLen() int  { return GENERAL_CONFIG_SIZE }
func (WriteConfig) sealed()          {}

func (w WriteConfig) appendPayload(dst []byte) []byte { return w.Config.appendTo(dst) }

// ReadConfig requests the device's current GeneralConfig. Zero payload.
type ReadConfig struct{}

func (ReadConfig) Type() PacketType              { return TypeReadConfig }
func (ReadConfig) payloadLen() int               { return 0 }
func (ReadConfig) appendPayload(dst []byte) []byte { return dst }
func (ReadConfig) sealed()                       {}

// ReadConfigResponse is the device's reply to ReadConfig.
type ReadConfigResponse struct {
	Config GeneralConfig
}

func (ReadConfigResponse) Type() PacketType { return TypeReadConfigResponse }
func (ReadConfigResponse) payloadLen() int  { return GENERAL_CONFIG_SIZE }
func (ReadConfigResponse) sealed()          {}

func (r ReadConfigResponse) appendPayload(dst []byte) []byte { return r.Config.appendTo(dst) }

// ObjectReportRequest asks the device for a one-shot ObjectReport.
// Zero payload.
type ObjectReportRequest struct{}

func (ObjectReportRequest) Type() PacketType              { return TypeObjectReportRequest }
func (ObjectReportRequest) payloadLen() int               { return 0 }
func (ObjectReportRequest) appendPayload(dst []byte) []byte { return dst }
func (ObjectReportRequest) sealed()                       {}

// Stream subscription mask bits for StreamUpdate.
const (
	StreamObject          uint8 = 1 << 0
	StreamCombinedMarkers uint8 = 1 << 1
	StreamAccel           uint8 = 1 << 2
	StreamImpact          uint8 = 1 << 3
)

// StreamUpdate enables or disables continuous emission of the report
// types selected by Mask. The packet id names the subscription the
// device associates the stream with.
type StreamUpdate struct {
	Mask   uint8
	Active bool
}

func (StreamUpdate) Type() PacketType { return TypeStreamUpdate }
func (StreamUpdate) payloadLen() int  { return STREAM_UPDATE_SIZE }
func (StreamUpdate) sealed()          {}

func (s StreamUpdate) appendPayload(dst []byte) []byte {
	active := byte(0)
	if s.Active {
		active = 1
	}
	return append(dst, s.Mask, active)
}

func parseStreamUpdate(c *Cursor) (StreamUpdate, error) {
	b, ok := c.Take(STREAM_UPDATE_SIZE)
	if !ok {
		return StreamUpdate{}, eof(TypeStreamUpdate)
	}
	return StreamUpdate{Mask: b[0], Active: b[1] != 0}, nil
}

// ImpactReport notifies the host that the accelerometer crossed the
// configured impact threshold. Zero payload in this protocol revision.
type ImpactReport struct{}

func (ImpactReport) Type() PacketType              { return TypeImpactReport }
func (ImpactReport) payloadLen() int               { return 0 }
func (ImpactReport) appendPayload(dst []byte) []byte { return dst }
func (ImpactReport) sealed()                       {}

// FlashSettings asks the device to persist its current configuration to
// non-volatile storage. Zero payload.
type FlashSettings struct{}

func (FlashSettings) Type() PacketType              { return TypeFlashSettings }
func (FlashSettings) payloadLen() int               { return 0 }
func (FlashSettings) appendPayload(dst []byte) []byte { return dst }
func (FlashSettings) sealed()                       {}
