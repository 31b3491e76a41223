package llm

import (
	"context"
	"sync"
	"time"
)

// Mock is a scripted client for tests. Responses are returned in order; once
// exhausted the last one repeats. A non-nil Err is returned for every call.
type Mock struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Offline   bool
	Calls     []ChatRequest
	calls     int
}

var _ Client = (*Mock)(nil)

func (m *Mock) Provider() string { return "mock" }

func (m *Mock) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return nil, m.Err
	}

	text := "ok"
	if len(m.Responses) > 0 {
		idx := m.calls
		if idx >= len(m.Responses) {
			idx = len(m.Responses) - 1
		}
		text = m.Responses[idx]
	}
	m.calls++

	return &ChatResponse{Text: text, Latency: time.Millisecond, Model: "mock"}, nil
}

func (m *Mock) IsAvailable(context.Context) bool { return !m.Offline }

// LastCall returns the most recent request, or a zero request if none.
func (m *Mock) LastCall() ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return ChatRequest{}
	}
	return m.Calls[len(m.Calls)-1]
}
