package sink

import (
	"errors"
	"sync"

	"github.com/andresmejia3/posepipe/internal/types"
)

// Memory keeps written frames, mainly for tests and embedding.
type Memory struct {
	mu     sync.Mutex
	frames []types.Frame
	closed bool
}

func (m *Memory) Write(f types.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("write to closed sink")
	}
	m.frames = append(m.frames, f)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Frames returns what has been written so far.
func (m *Memory) Frames() []types.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Frame(nil), m.frames...)
}

// Closed reports whether Close has been called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
