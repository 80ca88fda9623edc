package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// serialMode translates PortOptions into the library's mode type.
func serialMode(opts PortOptions) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}

	switch opts.Parity {
	case NoParity:
		mode.Parity = serial.NoParity
	case OddParity:
		mode.Parity = serial.OddParity
	case EvenParity:
		mode.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("unsupported parity: %d", opts.Parity)
	}

	switch opts.StopBits {
	case OneStopBit:
		mode.StopBits = serial.OneStopBit
	case TwoStopBits:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits: %d", opts.StopBits)
	}

	return mode, nil
}

// NewRealSerialMux creates a SerialMux instance backed by a real serial
// port at the given path using the provided options.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux, error) {
	mode, err := serialMode(opts)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewSerialMux(port), nil
}
