package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// FreeModelSuffix marks OpenRouter model identifiers served from the free tier.
const FreeModelSuffix = ":free"

// IsFreeModel reports whether an OpenRouter model identifier names a free-tier model.
func IsFreeModel(modelID string) bool {
	return strings.HasSuffix(strings.TrimSpace(modelID), FreeModelSuffix)
}

// OpenRouterClient talks to the OpenRouter chat completions API.
type OpenRouterClient struct {
	client *openai.Client
}

// NewOpenRouterClient builds a client for the given API key. An empty baseURL
// selects the public OpenRouter endpoint.
func NewOpenRouterClient(apiKey, baseURL string) *OpenRouterClient {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	cfg.BaseURL = defaultOpenRouterBaseURL
	if v := strings.TrimSpace(baseURL); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}

	return &OpenRouterClient{client: openai.NewClientWithConfig(cfg)}
}

func (c *OpenRouterClient) Name() string {
	return "openrouter"
}

// CreateCompletion sends a single-turn chat request. Provider failures are
// normalized into *APIError; everything else passes through unchanged.
func (c *OpenRouterClient) CreateCompletion(ctx context.Context, modelID, prompt string, maxTokens int) (*Completion, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("llm: openrouter: nil client")
	}
	if ctx == nil {
		return nil, errors.New("llm: openrouter: nil context")
	}
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, errors.New("llm: openrouter: empty model id")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("llm: openrouter: empty prompt")
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelID,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, normalizeOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("llm: openrouter: empty choices")
	}

	return &Completion{
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func normalizeOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.HTTPStatusCode,
			Status:     fmt.Sprintf("%d %s", apiErr.HTTPStatusCode, http.StatusText(apiErr.HTTPStatusCode)),
			Message:    strings.TrimSpace(apiErr.Message),
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		out := &APIError{
			StatusCode: reqErr.HTTPStatusCode,
			Status:     fmt.Sprintf("%d %s", reqErr.HTTPStatusCode, http.StatusText(reqErr.HTTPStatusCode)),
		}
		if reqErr.Err != nil {
			out.Message = strings.TrimSpace(reqErr.Err.Error())
		}
		return out
	}

	return err
}
