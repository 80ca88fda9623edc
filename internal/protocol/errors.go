package protocol

import (
	"errors"
	"fmt"
)

// Decode failures form a closed set. The codec never recovers
// internally: every error is returned to the caller, which decides
// whether to resynchronise (framing layer) or surface the failure
// (command/response paths).
var (
	// ErrUnrecognizedPacketID is returned when the type tag byte is
	// outside the known range.
	ErrUnrecognizedPacketID = errors.New("protocol: unrecognized packet id")

	// ErrUnrecognizedPort is returned when a port byte is neither
	// 0 (NF) nor 1 (WF).
	ErrUnrecognizedPort = errors.New("protocol: unrecognized port")

	// ErrUnrecognizedMarkerPattern is returned when a marker pattern
	// byte does not name a known arrangement.
	ErrUnrecognizedMarkerPattern = errors.New("protocol: unrecognized marker pattern")
)

// UnexpectedEOFError reports a buffer too short for the packet it
// declares. TypeKnown is false when even the 4-byte header was
// incomplete, so the packet type could not be read.
type UnexpectedEOFError struct {
	PacketType PacketType
	TypeKnown  bool
}

func (e *UnexpectedEOFError) Error() string {
	if !e.TypeKnown {
		return "protocol: unexpected eof"
	}
	return fmt.Sprintf("protocol: unexpected eof decoding %v packet", e.PacketType)
}

// eof builds an UnexpectedEOFError for a known packet type.
func eof(t PacketType) error {
	return &UnexpectedEOFError{PacketType: t, TypeKnown: true}
}
