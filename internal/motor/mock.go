package motor

import "sync"

// Mock is a Driver that records every command it receives. Used in tests
// and for bench-top runs without the motor controller attached.
type Mock struct {
	mu      sync.Mutex
	history []float64
	stopped bool
}

// NewMock creates a recording mock driver.
func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Apply(percent float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, percent)
	m.stopped = false
	return nil
}

func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, 0)
	m.stopped = true
	return nil
}

// Last returns the most recent command, or 0 when none was issued.
func (m *Mock) Last() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return 0
	}
	return m.history[len(m.history)-1]
}

// History returns a copy of all commands in order.
func (m *Mock) History() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.history))
	copy(out, m.history)
	return out
}

// Stopped reports whether the last command was an explicit Stop.
func (m *Mock) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
