package oracle

import (
	"context"
	"sync"
)

// Mock is a scripted oracle for tests and offline runs. Responses are
// keyed by stage; unscripted stages get a neutral canned thought.
type Mock struct {
	mu        sync.Mutex
	responses map[string]*Result
	errs      map[string]error
	calls     []Request
}

// NewMock creates an empty scripted oracle.
func NewMock() *Mock {
	return &Mock{
		responses: make(map[string]*Result),
		errs:      make(map[string]error),
	}
}

// Respond scripts the result for a stage.
func (m *Mock) Respond(stage string, res *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[stage] = res
}

// Fail scripts an error for a stage.
func (m *Mock) Fail(stage string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[stage] = err
}

// Calls returns every request seen so far.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Invoke implements Oracle.
func (m *Mock) Invoke(_ context.Context, req Request) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if err, ok := m.errs[req.Stage]; ok {
		return nil, err
	}
	if res, ok := m.responses[req.Stage]; ok {
		cp := *res
		return &cp, nil
	}
	return &Result{Content: "nothing notable about " + req.Stage, Confidence: 0.6}, nil
}
