package llm

import (
	"context"
	"sync"
)

// MockClient is a scripted Client for tests. Responses are returned in order;
// the last one repeats once the script runs out.
type MockClient struct {
	Responses []string
	Err       error
	Available error
	ModelName string

	mu       sync.Mutex
	requests []Request
}

func NewMockClient(responses ...string) *MockClient {
	return &MockClient{Responses: responses, ModelName: "mock-model"}
}

func (m *MockClient) Name() string {
	return "mock"
}

func (m *MockClient) Model() string {
	return m.ModelName
}

func (m *MockClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.Responses) == 0 {
		return nil, ErrEmptyCompletion
	}

	idx := len(m.requests) - 1
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return &Completion{Text: m.Responses[idx], Model: m.ModelName}, nil
}

func (m *MockClient) IsAvailable(ctx context.Context) error {
	return m.Available
}

// Requests returns a copy of every request received so far.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

var _ Client = (*MockClient)(nil)
