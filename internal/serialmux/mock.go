package serialmux

import (
	"io"
	"sync"
)

// MockPort implements SerialPorter for tests: queued byte chunks are
// returned from Read, writes are recorded, Close unblocks readers.
type MockPort struct {
	reads    chan []byte
	leftover []byte

	mu     sync.Mutex
	writes [][]byte
	closed bool
	done   chan struct{}
}

func NewMockPort() *MockPort {
	return &MockPort{
		reads: make(chan []byte, 64),
		done:  make(chan struct{}),
	}
}

// QueueRead schedules bytes to be returned by a future Read call.
func (m *MockPort) QueueRead(b []byte) {
	chunk := make([]byte, len(b))
	copy(chunk, b)
	m.reads <- chunk
}

func (m *MockPort) Read(p []byte) (int, error) {
	if len(m.leftover) > 0 {
		n := copy(p, m.leftover)
		m.leftover = m.leftover[n:]
		return n, nil
	}
	select {
	case chunk := <-m.reads:
		n := copy(p, chunk)
		m.leftover = chunk[n:]
		return n, nil
	case <-m.done:
		return 0, io.EOF
	}
}

func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, io.ErrClosedPipe
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)
	m.writes = append(m.writes, chunk)
	return len(p), nil
}

// Writes returns a copy of everything written to the port so far.
func (m *MockPort) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}
