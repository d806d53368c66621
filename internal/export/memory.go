package export

import (
	"context"
	"fmt"
	"sync"
)

// Memory keeps requests in memory. It is safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	requests  map[string]Request
	cancelled map[string]bool
}

func NewMemory() *Memory {
	return &Memory{requests: make(map[string]Request), cancelled: make(map[string]bool)}
}

func (m *Memory) Submit(_ context.Context, req Request) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[req.Name]; ok {
		return Task{}, fmt.Errorf("duplicate export %s", req.Name)
	}
	m.requests[req.Name] = req
	return NewTask(req, "memory://"+req.Name, Completed), nil
}

func (m *Memory) Cancel(_ context.Context, t Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[t.Name]; !ok {
		return fmt.Errorf("unknown export %s", t.Name)
	}
	m.cancelled[t.Name] = true
	return nil
}

// Request returns a submitted request by name.
func (m *Memory) Request(name string) (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[name]
	return r, ok
}

// Names lists submitted requests in no particular order.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.requests))
	for k := range m.requests {
		out = append(out, k)
	}
	return out
}

func (m *Memory) Cancelled(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled[name]
}
