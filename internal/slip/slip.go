// Package slip implements SLIP-style byte stuffing for delimiting
// variable-length packets inside a continuous byte stream. The vision
// module tunnels its wire protocol over SLIP when talking UDP, where
// datagram payloads carry one or more frames back to back.
package slip

import "bytes"

// Framing bytes. A frame is terminated by End; occurrences of End or
// Esc inside the payload are replaced by two-byte escape sequences.
const (
	End    = 0xC0
	Esc    = 0xDB
	EscEnd = 0xDC
	EscEsc = 0xDD
)

// DefaultMaxBuffer bounds the decoder's accumulation buffer so a
// stalled partial frame cannot grow without limit.
const DefaultMaxBuffer = 64 * 1024

// AppendFrame appends the escaped payload followed by the frame
// terminator to dst and returns the extended slice.
func AppendFrame(dst, payload []byte) []byte {
	for _, b := range payload {
		switch b {
		case End:
			dst = append(dst, Esc, EscEnd)
		case Esc:
			dst = append(dst, Esc, EscEsc)
		default:
			dst = append(dst, b)
		}
	}
	return append(dst, End)
}

// Unescape resolves escape sequences in a single frame body (terminator
// already stripped), writing in place over frame's backing array. It
// returns the shortened slice, or ok=false when the frame contains a
// malformed escape sequence.
func Unescape(frame []byte) (out []byte, ok bool) {
	// Fast path: nothing escaped.
	if bytes.IndexByte(frame, Esc) < 0 {
		return frame, true
	}
	out = frame[:0]
	for i := 0; i < len(frame); i++ {
		if frame[i] != Esc {
			out = append(out, frame[i])
			continue
		}
		i++
		if i >= len(frame) {
			return nil, false // dangling escape at end of frame
		}
		switch frame[i] {
		case EscEnd:
			out = append(out, End)
		case EscEsc:
			out = append(out, Esc)
		default:
			return nil, false
		}
	}
	return out, true
}

// Decoder extracts frames from an accumulated byte stream. The
// accumulation buffer is its only state; it either holds a complete
// frame (terminator present) or is waiting for more bytes.
//
// A malformed frame never desynchronises the stream: it is discarded
// and scanning resumes at the byte after its terminator.
//
// Decoder is not safe for concurrent use; each stream owns its own.
type Decoder struct {
	buf       []byte
	maxBuffer int
	dropped   uint64
}

// NewDecoder returns a decoder with the default buffer bound.
func NewDecoder() *Decoder {
	return &Decoder{maxBuffer: DefaultMaxBuffer}
}

// Feed appends raw transport bytes to the accumulation buffer. When the
// buffer would exceed its bound without yielding a frame, the oldest
// bytes are discarded; the partial frame they belonged to is lost and
// counted as dropped.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
	if len(d.buf) > d.maxBuffer {
		excess := len(d.buf) - d.maxBuffer
		d.buf = d.buf[:copy(d.buf, d.buf[excess:])]
		d.dropped++
	}
}

// Next pops the next complete, well-formed frame from the buffer, or
// returns nil when no complete frame is buffered. Empty frames
// (back-to-back terminators) are skipped silently; malformed frames
// are skipped and counted as dropped.
//
// The returned slice aliases the decoder's buffer and is valid until
// the next call to Feed or Next.
func (d *Decoder) Next() []byte {
	for {
		end := bytes.IndexByte(d.buf, End)
		if end < 0 {
			return nil
		}
		frame := d.buf[:end]
		// Consume the frame and its terminator regardless of whether
		// unescaping succeeds.
		d.buf = d.buf[end+1:]

		if len(frame) == 0 {
			continue
		}
		out, ok := Unescape(frame)
		if !ok {
			d.dropped++
			continue
		}
		return out
	}
}

// Dropped reports how many frames or partial buffers have been
// discarded since the decoder was created.
func (d *Decoder) Dropped() uint64 { return d.dropped }

// Buffered reports how many bytes are waiting for a terminator.
func (d *Decoder) Buffered() int { return len(d.buf) }
