package serialmux

import "io"

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real device hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// PortOptions defines serial port configuration parameters.
type PortOptions struct {
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits StopBits
}

// Parity defines serial port parity options.
type Parity int

const (
	NoParity Parity = iota
	OddParity
	EvenParity
)

// StopBits defines serial port stop bit options.
type StopBits int

const (
	OneStopBit StopBits = iota
	TwoStopBits
)

// DefaultPortOptions returns the default mode for the vision module's
// USB-serial interface.
func DefaultPortOptions() PortOptions {
	return PortOptions{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   NoParity,
		StopBits: OneStopBit,
	}
}
