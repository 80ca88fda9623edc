package protocol

import "encoding/binary"

// MotData is one blob-detector observation from the device's onboard
// vision DSP. The wire record is exactly 16 bytes:
//
//	bytes 0-1:   area (u16 LE)
//	bytes 2-3:   cx (12-bit, upper nibble of byte 3 unused)
//	bytes 4-5:   cy (12-bit, upper nibble of byte 5 unused)
//	byte  6:     average brightness
//	byte  7:     max brightness
//	byte  8:     radius (low nibble) and range (high nibble)
//	bytes 9-12:  boundary left/right/up/down (7-bit each)
//	byte  13:    aspect ratio
//	bytes 14-15: vx, vy
type MotData struct {
	Area          uint16
	CX            uint16 // 12-bit
	CY            uint16 // 12-bit
	AvgBrightness uint8
	MaxBrightness uint8
	Range         uint8 // 4-bit
	Radius        uint8 // 4-bit
	BoundaryLeft  uint8 // 7-bit
	BoundaryRight uint8 // 7-bit
	BoundaryUp    uint8 // 7-bit
	BoundaryDown  uint8 // 7-bit
	AspectRatio   uint8
	VX            uint8
	VY            uint8
}

func parseMotData(b []byte) MotData {
	return MotData{
		Area:          binary.LittleEndian.Uint16(b[0:2]),
		CX:            uint16(b[2]) | uint16(b[3]&0x0f)<<8,
		CY:            uint16(b[4]) | uint16(b[5]&0x0f)<<8,
		AvgBrightness: b[6],
		MaxBrightness: b[7],
		Radius:        b[8] & 0x0f,
		Range:         b[8] >> 4,
		BoundaryLeft:  b[9] & 0x7f,
		BoundaryRight: b[10] & 0x7f,
		BoundaryUp:    b[11] & 0x7f,
		BoundaryDown:  b[12] & 0x7f,
		AspectRatio:   b[13],
		VX:            b[14],
		VY:            b[15],
	}
}

// appendTo encodes the record as the exact inverse of parseMotData.
// Boundary bytes are masked to 7 bits on both directions so a record
// round-trips bit-exactly.
func (m MotData) appendTo(dst []byte) []byte {
	return append(dst,
		byte(m.Area), byte(m.Area>>8),
		byte(m.CX), byte(m.CX>>8)&0x0f,
		byte(m.CY), byte(m.CY>>8)&0x0f,
		m.AvgBrightness,
		m.MaxBrightness,
		m.Radius&0x0f|m.Range<<4,
		m.BoundaryLeft&0x7f,
		m.BoundaryRight&0x7f,
		m.BoundaryUp&0x7f,
		m.BoundaryDown&0x7f,
		m.AspectRatio,
		m.VX,
		m.VY,
	)
}

// ObjectReport is the per-frame detected-blob telemetry: 16 MotData
// records for each sensor followed by a 2-byte trailer whose first byte
// is the report format revision (the firmware currently sends 1).
type ObjectReport struct {
	NF     [OBJECTS_PER_SENSOR]MotData
	WF     [OBJECTS_PER_SENSOR]MotData
	Format uint8
}

func (ObjectReport) Type() PacketType { return TypeObjectReport }
func (ObjectReport) payloadLen() int  { return OBJECT_REPORT_SIZE }
func (ObjectReport) sealed()          {}

func (o ObjectReport) appendPayload(dst []byte) []byte {
	for i := range o.NF {
		dst = o.NF[i].appendTo(dst)
	}
	for i := range o.WF {
		dst = o.WF[i].appendTo(dst)
	}
	return append(dst, o.Format, 0)
}

func parseObjectReport(c *Cursor) (ObjectReport, error) {
	b, ok := c.Take(OBJECT_REPORT_SIZE)
	if !ok {
		return ObjectReport{}, eof(TypeObjectReport)
	}
	var o ObjectReport
	for i := range o.NF {
		o.NF[i] = parseMotData(b[i*MOT_DATA_SIZE:])
	}
	for i := range o.WF {
		o.WF[i] = parseMotData(b[(OBJECTS_PER_SENSOR+i)*MOT_DATA_SIZE:])
	}
	o.Format = b[2*OBJECTS_PER_SENSOR*MOT_DATA_SIZE]
	return o, nil
}

// Point is a 12-bit marker centroid coordinate pair.
type Point struct {
	X uint16
	Y uint16
}

// CombinedMarkersReport is the compacted marker-centroid telemetry: 32
// points (16 NF then 16 WF) packed two 12-bit coordinates per 3 bytes,
// followed by 32 radius nibbles packed two per byte. 112 bytes total.
//
// Point packing: byte 0 is the low 8 bits of x; byte 1 holds the high 4
// bits of x in its low nibble and the low 4 bits of y in its high
// nibble; byte 2 is the high 8 bits of y. Radius packing: low nibble
// first element, high nibble second element of each pair.
type CombinedMarkersReport struct {
	NFPoints [OBJECTS_PER_SENSOR]Point
	WFPoints [OBJECTS_PER_SENSOR]Point
	NFRadii  [OBJECTS_PER_SENSOR]uint8
	WFRadii  [OBJECTS_PER_SENSOR]uint8
}

func (CombinedMarkersReport) Type() PacketType { return TypeCombinedMarkersReport }
func (CombinedMarkersReport) payloadLen() int  { return COMBINED_MARKERS_SIZE }
func (CombinedMarkersReport) sealed()          {}

func packPoint(dst []byte, p Point) []byte {
	return append(dst,
		byte(p.X),
		byte(p.X>>8)&0x0f|byte(p.Y&0x0f)<<4,
		byte(p.Y>>4),
	)
}

func unpackPoint(b []byte) Point {
	return Point{
		X: uint16(b[0]) | uint16(b[1]&0x0f)<<8,
		Y: uint16(b[1]>>4) | uint16(b[2])<<4,
	}
}

func (r CombinedMarkersReport) appendPayload(dst []byte) []byte {
	for _, p := range r.NFPoints {
		dst = packPoint(dst, p)
	}
	for _, p := range r.WFPoints {
		dst = packPoint(dst, p)
	}
	for i := 0; i < OBJECTS_PER_SENSOR; i += 2 {
		dst = append(dst, r.NFRadii[i]&0x0f|r.NFRadii[i+1]<<4)
	}
	for i := 0; i < OBJECTS_PER_SENSOR; i += 2 {
		dst = append(dst, r.WFRadii[i]&0x0f|r.WFRadii[i+1]<<4)
	}
	return dst
}

func parseCombinedMarkersReport(c *Cursor) (CombinedMarkersReport, error) {
	b, ok := c.Take(COMBINED_MARKERS_SIZE)
	if !ok {
		return CombinedMarkersReport{}, eof(TypeCombinedMarkersReport)
	}
	var r CombinedMarkersReport
	for i := range r.NFPoints {
		r.NFPoints[i] = unpackPoint(b[i*3:])
	}
	for i := range r.WFPoints {
		r.WFPoints[i] = unpackPoint(b[(OBJECTS_PER_SENSOR+i)*3:])
	}
	radii := b[2*OBJECTS_PER_SENSOR*3:]
	for i := 0; i < OBJECTS_PER_SENSOR; i += 2 {
		r.NFRadii[i] = radii[i/2] & 0x0f
		r.NFRadii[i+1] = radii[i/2] >> 4
	}
	radii = radii[OBJECTS_PER_SENSOR/2:]
	for i := 0; i < OBJECTS_PER_SENSOR; i += 2 {
		r.WFRadii[i] = radii[i/2] & 0x0f
		r.WFRadii[i+1] = radii[i/2] >> 4
	}
	return r, nil
}

// Accelerometer and gyro scale factors for AccelReport raw samples.
const (
	ACCEL_LSB_PER_G   = 16384.0 // raw counts per g
	GYRO_LSB_PER_DPS  = 16.4    // raw counts per degree/second
)

// AccelReport is one inertial sample: acceleration in g and angular
// rate in degrees per second. The wire payload is 6 signed 16-bit LE
// values (3-axis accel then 3-axis gyro).
//
// AccelReport is telemetry-only: the host never sends one, so it has no
// serialization in the host-to-device direction.
type AccelReport struct {
	Accel [3]float64
	Gyro  [3]float64
}

func (AccelReport) Type() PacketType { return TypeAccelReport }
func (AccelReport) payloadLen() int  { return ACCEL_REPORT_SIZE }
func (AccelReport) sealed()          {}

func (AccelReport) appendPayload(dst []byte) []byte {
	panic("protocol: AccelReport is device-to-host only and cannot be serialized")
}

func parseAccelReport(c *Cursor) (AccelReport, error) {
	b, ok := c.Take(ACCEL_REPORT_SIZE)
	if !ok {
		return AccelReport{}, eof(TypeAccelReport)
	}
	var r AccelReport
	for i := 0; i < 3; i++ {
		raw := int16(binary.LittleEndian.Uint16(b[i*2:]))
		r.Accel[i] = float64(raw) / ACCEL_LSB_PER_G
	}
	for i := 0; i < 3; i++ {
		raw := int16(binary.LittleEndian.Uint16(b[6+i*2:]))
		r.Gyro[i] = float64(raw) / GYRO_LSB_PER_DPS
	}
	return r, nil
}
