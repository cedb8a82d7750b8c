package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockModelName = "mock"

// MockModel is a Model for testing.
type MockModel struct {
	// Latency delays every call.
	Latency time.Duration

	// Recognize returns the markdown for a recognition call. Defaults to a
	// fixed string naming the call number.
	Recognize func(call int64, args *Args) (string, error)

	// Extract returns the object for an extraction call. Defaults to an
	// empty object.
	Extract func(call int64, args *Args) (map[string]any, error)

	InputTokens  int
	OutputTokens int
	Logprobs     []TokenLogprob

	requestCount atomic.Int64
	inFlight     atomic.Int64
	peak         atomic.Int64

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records one call made to a MockModel.
type MockCall struct {
	Mode OperationMode
	Args Args
}

// NewMockModel creates a mock with sensible defaults.
func NewMockModel() *MockModel {
	return &MockModel{
		InputTokens:  10,
		OutputTokens: 5,
	}
}

// Name returns the provider identifier.
func (m *MockModel) Name() string {
	return MockModelName
}

// GetCompletion records the call and returns the configured response.
func (m *MockModel) GetCompletion(ctx context.Context, mode OperationMode, args *Args) (*Response, error) {
	count := m.requestCount.Add(1)
	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if cur <= p || m.peak.CompareAndSwap(p, cur) {
			break
		}
	}

	if args == nil {
		args = &Args{}
	}
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Mode: mode, Args: *args})
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	resp := &Response{
		InputTokens:  m.InputTokens,
		OutputTokens: m.OutputTokens,
		Logprobs:     m.Logprobs,
		Model:        MockModelName,
	}

	switch mode {
	case ModeRecognition:
		if m.Recognize == nil {
			resp.Content = fmt.Sprintf("mock page %d", count)
			return resp, nil
		}
		content, err := m.Recognize(count, args)
		if err != nil {
			return nil, err
		}
		resp.Content = content
		return resp, nil
	case ModeExtraction:
		if m.Extract == nil {
			resp.Extracted = map[string]any{}
			return resp, nil
		}
		obj, err := m.Extract(count, args)
		if err != nil {
			return nil, err
		}
		resp.Extracted = obj
		return resp, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
}

// RequestCount returns the number of requests made.
func (m *MockModel) RequestCount() int64 {
	return m.requestCount.Load()
}

// PeakConcurrency returns the most calls that were in flight at once.
func (m *MockModel) PeakConcurrency() int64 {
	return m.peak.Load()
}

// Calls returns a copy of the recorded calls.
func (m *MockModel) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Verify interface
var _ Model = (*MockModel)(nil)
