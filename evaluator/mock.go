package evaluator

import (
	"context"
	"sync"

	"github.com/getpup/evalrun"
)

// MockClient is a configurable Client for testing.
type MockClient struct {
	mu sync.Mutex

	// EvaluateFunc is called for each request. If nil, Evaluate returns a
	// PASS verdict.
	EvaluateFunc func(ctx context.Context, req Request) (Result, error)

	// Calls records every request in order.
	Calls []Request
}

// Evaluate records the call and delegates to EvaluateFunc.
func (m *MockClient) Evaluate(ctx context.Context, req Request) (Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	fn := m.EvaluateFunc
	m.mu.Unlock()

	if fn == nil {
		return Result{Verdict: evalrun.VerdictPass, Reasoning: "mock verdict"}, nil
	}
	return fn(ctx, req)
}

// CallCount returns the number of recorded calls.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears the recorded calls.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}
