package llm

import (
	"sync"

	"github.com/spherical/scan-ocr/internal/domain"
)

// Model is a loaded enhancement model. It holds the prompt built for the
// run's languages and admits one Enhance call at a time.
type Model struct {
	name   string
	prompt string

	mu     sync.Mutex
	state  sync.Mutex
	closed bool
}

func (m *Model) Name() string { return m.name }

// Close releases the model. Later Enhance calls fail.
func (m *Model) Close() error {
	m.state.Lock()
	defer m.state.Unlock()
	m.closed = true
	return nil
}

// acquire claims exclusive use of the model. A second concurrent caller fails
// immediately instead of queueing.
func (m *Model) acquire() (func(), error) {
	m.state.Lock()
	closed := m.closed
	m.state.Unlock()
	if closed {
		return nil, domain.EngineInvocationError("model "+m.name+" is closed", nil)
	}
	if !m.mu.TryLock() {
		return nil, domain.EngineInvocationError("model "+m.name+" is already in use", nil)
	}
	return m.mu.Unlock, nil
}
