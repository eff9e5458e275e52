package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Client issues a single completion request against a chat provider.
// Implementations do not retry; callers own the retry policy.
type Client interface {
	Name() string
	CreateCompletion(ctx context.Context, modelID, prompt string, maxTokens int) (*Completion, error)
}

// Completion is a provider-agnostic completion response.
type Completion struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// APIError represents a non-2xx response from a provider.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

// Error formats the API error string.
func (e *APIError) Error() string {
	if e == nil {
		return "llm: api error <nil>"
	}

	status := strings.TrimSpace(e.Status)
	if status == "" && e.StatusCode != 0 {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}

	msg := strings.TrimSpace(e.Message)
	if msg != "" {
		return fmt.Sprintf("llm: api error (%s): %s", status, msg)
	}
	return fmt.Sprintf("llm: api error (%s)", status)
}
