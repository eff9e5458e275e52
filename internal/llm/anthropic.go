package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicVersionHeader = "2023-06-01"

// AnthropicClient talks to the Anthropic messages API directly.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient builds a client for the given API key. An empty baseURL
// selects the public Anthropic endpoint. SDK-level retries are disabled so the
// caller controls the retry policy.
func NewAnthropicClient(apiKey, baseURL string) *AnthropicClient {
	opts := make([]option.RequestOption, 0, 4)
	if v := strings.TrimSpace(apiKey); v != "" {
		opts = append(opts, option.WithAPIKey(v))
	}
	if v := strings.TrimSpace(baseURL); v != "" {
		opts = append(opts, option.WithBaseURL(anthropicBaseURL(v)))
	}
	opts = append(opts, option.WithMaxRetries(0))
	opts = append(opts, option.WithHeader("anthropic-version", anthropicVersionHeader))

	client := anthropic.NewClient(opts...)
	return &AnthropicClient{client: &client}
}

func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// CreateCompletion sends a single-turn messages request. SDK failures are
// normalized into *APIError; everything else passes through unchanged.
func (c *AnthropicClient) CreateCompletion(ctx context.Context, modelID, prompt string, maxTokens int) (*Completion, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("llm: anthropic: nil client")
	}
	if ctx == nil {
		return nil, errors.New("llm: anthropic: nil context")
	}
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, errors.New("llm: anthropic: empty model id")
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("llm: anthropic: empty prompt")
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, normalizeAnthropicError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}

	return &Completion{
		Content:      sb.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

type anthropicErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func normalizeAnthropicError(err error) error {
	if err == nil {
		return nil
	}

	var sdkErr *anthropic.Error
	if !errors.As(err, &sdkErr) {
		return err
	}

	apiErr := &APIError{StatusCode: sdkErr.StatusCode}
	if sdkErr.Response != nil {
		apiErr.Status = sdkErr.Response.Status
	} else if sdkErr.StatusCode != 0 {
		apiErr.Status = fmt.Sprintf("%d %s", sdkErr.StatusCode, http.StatusText(sdkErr.StatusCode))
	}

	if raw := strings.TrimSpace(sdkErr.RawJSON()); raw != "" {
		var env anthropicErrorEnvelope
		if json.Unmarshal([]byte(raw), &env) == nil {
			apiErr.Message = env.Error.Message
		}
	}

	return apiErr
}

func anthropicBaseURL(base string) string {
	base = strings.TrimSpace(strings.TrimRight(base, "/"))
	if strings.HasSuffix(base, "/v1") {
		base = strings.TrimSuffix(base, "/v1")
	}
	return base
}
