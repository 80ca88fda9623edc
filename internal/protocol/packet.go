// Package protocol implements the vision-module wire protocol: a
// length-prefixed, type-tagged binary packet format used in both
// directions between the host and the tracking sensor.
//
// Every packet starts with a fixed 4-byte header followed by a
// type-specific payload:
//
//	bytes 0-1: word count (u16 little-endian, payload length in 16-bit
//	           words, header excluded)
//	byte  2:   packet type (0..13, 13 reserved as the End sentinel)
//	byte  3:   id (request/response correlation, stream subscription)
//
// The codec is a pure transform over caller-supplied buffers. It holds
// no state and performs no I/O; framing and resynchronisation belong to
// the transport layers built on top of it.
package protocol

import "encoding/binary"

// Wire format constants. These define the fixed layout of packets sent by
// the vision module firmware and must match the device exactly.
const (
	HEADER_SIZE = 4 // word count (2) + packet type (1) + id (1)

	MOT_DATA_SIZE         = 16                          // one blob-detector record
	OBJECTS_PER_SENSOR    = 16                          // records per sensor per report
	OBJECT_REPORT_SIZE    = 2*OBJECTS_PER_SENSOR*MOT_DATA_SIZE + 2 // NF + WF records + 2-byte trailer
	COMBINED_MARKERS_SIZE = 2*OBJECTS_PER_SENSOR*3 + OBJECTS_PER_SENSOR // 32 packed points + 16 radius bytes
	ACCEL_REPORT_SIZE     = 12                          // 3-axis accel + 3-axis gyro, i16 LE each

	REGISTER_OP_SIZE    = 4 // register read/write payloads (padded)
	GENERAL_CONFIG_SIZE = 4 // impact threshold (1) + accel ODR (2) + pad (1)
	STREAM_UPDATE_SIZE  = 2 // mask (1) + active (1)
)

// PacketType is the single-byte wire discriminant identifying the payload
// layout of a packet.
type PacketType uint8

const (
	TypeWriteRegister PacketType = iota // a.k.a. Poke
	TypeReadRegister                    // a.k.a. Peek
	TypeReadRegisterResponse
	TypeWriteConfig
	TypeReadConfig
	TypeReadConfigResponse
	TypeObjectReportRequest
	TypeObjectReport
	TypeCombinedMarkersReport
	TypeAccelReport
	TypeImpactReport
	TypeStreamUpdate
	TypeFlashSettings
	TypeEnd // reserved sentinel, never a real payload
)

func (t PacketType) String() string {
	switch t {
	case TypeWriteRegister:
		return "WriteRegister"
	case TypeReadRegister:
		return "ReadRegister"
	case TypeReadRegisterResponse:
		return "ReadRegisterResponse"
	case TypeWriteConfig:
		return "WriteConfig"
	case TypeReadConfig:
		return "ReadConfig"
	case TypeReadConfigResponse:
		return "ReadConfigResponse"
	case TypeObjectReportRequest:
		return "ObjectReportRequest"
	case TypeObjectReport:
		return "ObjectReport"
	case TypeCombinedMarkersReport:
		return "CombinedMarkersReport"
	case TypeAccelReport:
		return "AccelReport"
	case TypeImpactReport:
		return "ImpactReport"
	case TypeStreamUpdate:
		return "StreamUpdate"
	case TypeFlashSettings:
		return "FlashSettings"
	case TypeEnd:
		return "End"
	}
	return "Unknown"
}

// PacketTypeFromByte validates a wire tag. Anything past TypeEnd is not
// a known packet type.
func PacketTypeFromByte(b byte) (PacketType, error) {
	if b > byte(TypeEnd) {
		return 0, ErrUnrecognizedPacketID
	}
	return PacketType(b), nil
}

// PayloadLen reports the fixed payload length in bytes for a packet
// type. ok is false for TypeEnd, which has no payload form. Transports
// reading an unframed stream use this to validate a header before
// trusting its declared length.
func PayloadLen(t PacketType) (n int, ok bool) {
	switch t {
	case TypeWriteRegister, TypeReadRegister, TypeReadRegisterResponse:
		return REGISTER_OP_SIZE, true
	case TypeWriteConfig, TypeReadConfigResponse:
		return GENERAL_CONFIG_SIZE, true
	case TypeReadConfig, TypeObjectReportRequest, TypeImpactReport, TypeFlashSettings:
		return 0, true
	case TypeObjectReport:
		return OBJECT_REPORT_SIZE, true
	case TypeCombinedMarkersReport:
		return COMBINED_MARKERS_SIZE, true
	case TypeAccelReport:
		return ACCEL_REPORT_SIZE, true
	case TypeStreamUpdate:
		return STREAM_UPDATE_SIZE, true
	}
	return 0, false
}

// Port selects which of the two optical sensors a register operation
// targets: near-field or wide-field.
type Port uint8

const (
	PortNF Port = 0
	PortWF Port = 1
)

func (p Port) String() string {
	switch p {
	case PortNF:
		return "NF"
	case PortWF:
		return "WF"
	}
	return "Unknown"
}

func portFromByte(b byte) (Port, error) {
	switch b {
	case 0:
		return PortNF, nil
	case 1:
		return PortWF, nil
	}
	return 0, ErrUnrecognizedPort
}

// Packet is the unit of communication with the device. ID correlates a
// request with its response (the device echoes it back) and doubles as
// the subscription id when issuing stream updates. Packets are pure
// values: they hold no reference to a transport or framing context.
type Packet struct {
	ID   uint8
	Data PacketData
}

// PacketData is the closed set of packet payloads. Exactly one concrete
// type exists per PacketType; the sealed marker keeps the set closed so
// type switches over PacketData stay exhaustive.
type PacketData interface {
	// Type reports the wire discriminant for this payload.
	Type() PacketType

	// payloadLen is the payload size in bytes, header excluded.
	payloadLen() int

	// appendPayload appends the encoded payload to dst.
	appendPayload(dst []byte) []byte

	sealed()
}

// Type reports the wire discriminant of the packet payload.
func (p Packet) Type() PacketType { return p.Data.Type() }

// Parse decodes a single packet from the start of b. It is a convenience
// wrapper around ParsePacket for callers that already hold one complete
// frame (e.g. a SLIP-delimited datagram payload).
func Parse(b []byte) (Packet, error) {
	return ParsePacket(NewCursor(b))
}

// ParsePacket decodes the next packet from the cursor, consuming exactly
// the header plus the packet's payload. Repeated calls over a persistent
// buffer continue where the previous call left off. On error the cursor
// is left unadvanced.
func ParsePacket(c *Cursor) (Packet, error) {
	hdr, ok := c.Peek(HEADER_SIZE)
	if !ok {
		return Packet{}, &UnexpectedEOFError{}
	}

	words := binary.LittleEndian.Uint16(hdr[0:2])
	ty, err := PacketTypeFromByte(hdr[2])
	if err != nil {
		return Packet{}, err
	}
	id := hdr[3]

	// The declared length counts payload only; the whole packet is
	// header + payload. Refuse to consume anything until all of it is
	// buffered so a short read never leaves the cursor mid-packet.
	payload := int(words) * 2
	if c.Remaining() < HEADER_SIZE+payload {
		return Packet{}, &UnexpectedEOFError{PacketType: ty, TypeKnown: true}
	}
	c.Skip(HEADER_SIZE)

	var data PacketData
	switch ty {
	case TypeWriteRegister:
		data, err = parseWriteRegister(c)
	case TypeReadRegister:
		data, err = parseReadRegister(c)
	case TypeReadRegisterResponse:
		data, err = parseReadRegisterResponse(c)
	case TypeWriteConfig:
		var cfg GeneralConfig
		cfg, err = parseGeneralConfig(c, ty)
		data = WriteConfig{cfg}
	case TypeReadConfig:
		data = ReadConfig{}
	case TypeReadConfigResponse:
		var cfg GeneralConfig
		cfg, err = parseGeneralConfig(c, ty)
		data = ReadConfigResponse{cfg}
	case TypeObjectReportRequest:
		data = ObjectReportRequest{}
	case TypeObjectReport:
		data, err = parseObjectReport(c)
	case TypeCombinedMarkersReport:
		data, err = parseCombinedMarkersReport(c)
	case TypeAccelReport:
		data, err = parseAccelReport(c)
	case TypeImpactReport:
		data = ImpactReport{}
	case TypeStreamUpdate:
		data, err = parseStreamUpdate(c)
	case TypeFlashSettings:
		data = FlashSettings{}
	default:
		// TypeEnd is the framing sentinel and never arrives as a packet.
		err = ErrUnrecognizedPacketID
	}
	if err != nil {
		return Packet{}, err
	}
	return Packet{ID: id, Data: data}, nil
}

// Append serializes the packet and appends it to dst, returning the
// extended slice. The output is always exactly HEADER_SIZE plus the
// payload length of the packet type. Append grows dst once up front so
// large reports do not reallocate per field.
//
// AccelReport cannot be appended: it is device-to-host telemetry only
// and attempting to serialize one is a programming error (panics).
func (p Packet) Append(dst []byte) []byte {
	n := p.Data.payloadLen()
	dst = grow(dst, HEADER_SIZE+n)

	// Word count covers the payload only; payloads are always an even
	// number of bytes.
	dst = binary.LittleEndian.AppendUint16(dst, uint16(n/2))
	dst = append(dst, byte(p.Data.Type()), p.ID)
	return p.Data.appendPayload(dst)
}

// grow ensures dst has capacity for n more bytes.
func grow(dst []byte, n int) []byte {
	if cap(dst)-len(dst) >= n {
		return dst
	}
	next := make([]byte, len(dst), len(dst)+n)
	copy(next, dst)
	return next
}
