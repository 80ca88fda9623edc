package slip

import (
	"bytes"
	"testing"
)

func TestAppendFrameEscapes(t *testing.T) {
	payload := []byte{0x01, End, 0x02, Esc, 0x03}
	frame := AppendFrame(nil, payload)
	want := []byte{0x01, Esc, EscEnd, 0x02, Esc, EscEsc, 0x03, End}
	if !bytes.Equal(frame, want) {
		t.Fatalf("AppendFrame = % x, want % x", frame, want)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{0x42},
		{End, End, Esc, Esc},
		bytes.Repeat([]byte{End, 0x00, Esc}, 100),
		{0x02, 0x00, 0x01, 0x05, 0x01, 0x00, 0x02, 0x00}, // a serialized packet
	}

	var stream []byte
	for _, p := range payloads {
		stream = AppendFrame(stream, p)
	}

	d := NewDecoder()
	d.Feed(stream)
	for i, want := range payloads {
		got := d.Next()
		if got == nil {
			t.Fatalf("frame %d: Next returned nil", i)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = % x, want % x", i, got, want)
		}
	}
	if extra := d.Next(); extra != nil {
		t.Errorf("unexpected extra frame % x", extra)
	}
}

// TestResyncAfterMalformedFrame checks that a corrupt escape sequence
// only loses its own frame: the next valid frame must still be
// delivered intact.
func TestResyncAfterMalformedFrame(t *testing.T) {
	var stream []byte
	stream = append(stream, 0x01, Esc, 0xAA, 0x02, End) // bad escape
	valid := []byte{0x10, 0x20, 0x30}
	stream = AppendFrame(stream, valid)

	d := NewDecoder()
	d.Feed(stream)

	got := d.Next()
	if !bytes.Equal(got, valid) {
		t.Fatalf("Next after malformed frame = % x, want % x", got, valid)
	}
	if d.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", d.Dropped())
	}
}

func TestDanglingEscapeDiscarded(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte{0x01, Esc, End}) // escape directly before terminator
	d.Feed(AppendFrame(nil, []byte{0x09}))

	if got := d.Next(); !bytes.Equal(got, []byte{0x09}) {
		t.Fatalf("Next = % x, want 09", got)
	}
	if d.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", d.Dropped())
	}
}

// TestPartialFeed drips a frame into the decoder one byte at a time;
// the frame must only appear once its terminator arrives.
func TestPartialFeed(t *testing.T) {
	payload := []byte{0x01, End, 0x02}
	frame := AppendFrame(nil, payload)

	d := NewDecoder()
	for i, b := range frame {
		d.Feed([]byte{b})
		got := d.Next()
		if i < len(frame)-1 {
			if got != nil {
				t.Fatalf("byte %d: premature frame % x", i, got)
			}
		} else if !bytes.Equal(got, payload) {
			t.Fatalf("final Next = % x, want % x", got, payload)
		}
	}
}

func TestEmptyFramesSkipped(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte{End, End, End})
	d.Feed(AppendFrame(nil, []byte{0x05}))
	if got := d.Next(); !bytes.Equal(got, []byte{0x05}) {
		t.Fatalf("Next = % x, want 05", got)
	}
	// Empty frames are benign separators, not drops.
	if got := d.Dropped(); got != 0 {
		t.Errorf("Dropped = %d, want 0", got)
	}
}

// TestBufferBound checks that a terminator-less stream cannot grow the
// accumulation buffer past its cap.
func TestBufferBound(t *testing.T) {
	d := NewDecoder()
	junk := bytes.Repeat([]byte{0x55}, 16*1024)
	for i := 0; i < 16; i++ {
		d.Feed(junk)
	}
	if d.Buffered() > DefaultMaxBuffer {
		t.Fatalf("Buffered = %d, want <= %d", d.Buffered(), DefaultMaxBuffer)
	}
	if d.Dropped() == 0 {
		t.Error("expected dropped bytes after overflowing the buffer")
	}

	// The decoder must still deliver a frame arriving after the junk.
	d.Feed([]byte{End}) // terminates (and flushes) the buffered junk
	d.Next()
	d.Feed(AppendFrame(nil, []byte{0x07}))
	if got := d.Next(); !bytes.Equal(got, []byte{0x07}) {
		t.Fatalf("Next after overflow = % x, want 07", got)
	}
}
