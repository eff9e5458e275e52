package llm

import (
	"errors"
	"fmt"
	"strings"
)

// NewClient builds a provider client by name. The API key must be supplied by
// the caller; clients never read credentials from process state.
func NewClient(provider, apiKey, baseURL string) (Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: missing api key")
	}

	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "openrouter":
		return NewOpenRouterClient(apiKey, baseURL), nil
	case "anthropic", "claude":
		return NewAnthropicClient(apiKey, baseURL), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
}
