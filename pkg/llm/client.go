// Package llm is the Go-side client for the LLM completion service.
// The reasoning models live behind a gRPC boundary; this package exposes a
// blocking Chat API and assembles the streamed chunks into a single
// response for the investigation engine.
package llm

import "context"

// Role identifies the author of a conversation message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ResponseFormatJSON asks the provider for a single JSON object reply.
// Providers that cannot honor it return plain text and the caller falls
// back to embedded-JSON extraction.
const ResponseFormatJSON = "json_object"

// Message is one entry in the conversation sent to the model.
type Message struct {
	Role    string
	Content string
}

// ChatRequest is a single completion request.
type ChatRequest struct {
	CaseID   string
	TurnID   string
	Messages []Message

	Model          string
	Temperature    *float32 // nil = provider default
	MaxTokens      *int32   // nil = provider default
	ResponseFormat string   // "" = free text
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens    int
	OutputTokens   int
	TotalTokens    int
	ThinkingTokens int
}

// ChatResponse is the fully assembled completion.
type ChatResponse struct {
	Text     string
	Thinking string
	Usage    Usage
}

// Provider is the interface the investigation engine calls for completions.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Chat sends the conversation and blocks until the full response is
	// assembled. Transport failures and retryable provider errors wrap
	// ErrUnavailable.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Close releases the underlying connection.
	Close() error
}
