package llm

import (
	"context"
	"sync"
)

// FakeProvider is a scripted Provider for tests and local development.
// Responses are returned in order; when the script runs out, the last
// response repeats. Safe for concurrent use.
type FakeProvider struct {
	mu        sync.Mutex
	responses []FakeResponse
	calls     int
	requests  []*ChatRequest
}

// FakeResponse is one scripted completion. Err, when set, is returned
// instead of the response.
type FakeResponse struct {
	Text  string
	Usage Usage
	Err   error
}

// NewFakeProvider creates a provider that replays the given responses.
// With no responses it answers every call with an empty JSON envelope.
func NewFakeProvider(responses ...FakeResponse) *FakeProvider {
	if len(responses) == 0 {
		responses = []FakeResponse{{Text: `{"reply": "Understood."}`}}
	}
	return &FakeProvider{responses: responses}
}

// Chat returns the next scripted response. Context cancellation is
// honored so callers can test timeout paths.
func (f *FakeProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	f.requests = append(f.requests, req)

	r := f.responses[idx]
	if r.Err != nil {
		return nil, r.Err
	}

	usage := r.Usage
	if usage == (Usage{}) {
		usage = Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150}
	}
	return &ChatResponse{Text: r.Text, Usage: usage}, nil
}

// Close implements Provider.
func (f *FakeProvider) Close() error { return nil }

// Calls returns how many completions were requested.
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastRequest returns the most recent request, or nil before any call.
func (f *FakeProvider) LastRequest() *ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}
