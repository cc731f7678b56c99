package llm

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks transient failures: the service is unreachable, the
// stream broke mid-response, or the provider reported a retryable error.
// Callers may retry the turn.
var ErrUnavailable = errors.New("llm service unavailable")

// ErrEmptyCompletion is returned when the stream completed without any
// response text.
var ErrEmptyCompletion = errors.New("llm returned empty completion")

// ProviderError is a non-retryable error reported by the provider itself,
// such as a content filter rejection or an invalid model name.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("llm provider error: %s", e.Message)
	}
	return fmt.Sprintf("llm provider error [%s]: %s", e.Code, e.Message)
}
