package eval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stellarlinkco/secbench/internal/llm"
	"github.com/stellarlinkco/secbench/internal/metrics"
	"github.com/stellarlinkco/secbench/internal/store"
)

const (
	defaultMaxAttempts  = 4
	defaultInitialDelay = 4 * time.Second
	maxCompletionTokens = 500
)

// Outcome is the terminal result of querying one question, after all
// retries have been spent.
type Outcome struct {
	Answer       string
	ResponseTime float64
	Content      string
}

// Executor runs a single question against a provider client, absorbing soft
// failures (unparseable answers, transient provider errors) with exponential
// backoff. Fatal provider errors propagate immediately.
type Executor struct {
	Client       llm.Client
	MaxAttempts  int
	InitialDelay time.Duration
}

// NewExecutor builds an executor with the default retry budget.
func NewExecutor(client llm.Client) *Executor {
	return &Executor{
		Client:       client,
		MaxAttempts:  defaultMaxAttempts,
		InitialDelay: defaultInitialDelay,
	}
}

// Execute queries the model about one question. The returned outcome always
// carries a valid answer letter or the failure sentinel; a non-nil error is
// always a fatal *ProviderError or a context error.
func (e *Executor) Execute(ctx context.Context, modelID string, q *store.Question) (*Outcome, error) {
	if e == nil || e.Client == nil {
		return nil, errors.New("eval: nil executor")
	}
	if ctx == nil {
		return nil, errors.New("eval: nil context")
	}
	if q == nil {
		return nil, errors.New("eval: nil question")
	}

	maxAttempts := e.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	delay := e.InitialDelay
	if delay < 0 {
		delay = defaultInitialDelay
	}

	prompt := buildPrompt(q)

	var lastContent string
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
		}

		start := time.Now()
		resp, err := e.Client.CreateCompletion(ctx, modelID, prompt, maxCompletionTokens)
		elapsed := time.Since(start).Seconds()

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			perr := Classify(err)
			if perr.Kind.Fatal() {
				return nil, perr
			}
			lastContent = perr.Error()
			continue
		}

		lastContent = resp.Content
		if answer := ExtractAnswer(resp.Content); answer != metrics.Failed {
			return &Outcome{
				Answer:       answer,
				ResponseTime: elapsed,
				Content:      resp.Content,
			}, nil
		}
	}

	return &Outcome{
		Answer:  metrics.Failed,
		Content: "Error Response: " + lastContent,
	}, nil
}

func buildPrompt(q *store.Question) string {
	var sb strings.Builder
	sb.WriteString("You are a cybersecurity expert. Analyze the following multiple-choice question and strictly follow the response format:\n\n")
	fmt.Fprintf(&sb, "Question:\n%s\n\n", q.Text)
	fmt.Fprintf(&sb, "Options:\nA: %s\nB: %s\nC: %s\nD: %s\n\n", q.OptionA, q.OptionB, q.OptionC, q.OptionD)
	sb.WriteString("### Important Instructions:\n")
	sb.WriteString("- Your response must strictly follow the given format.\n")
	sb.WriteString("- Always include 'Answer: ' followed by the correct letter (A, B, C, or D).\n")
	sb.WriteString("- Always include 'Explanation: ' followed by a brief justification.\n")
	sb.WriteString("- Do not respond in free text or change the format.\n\n")
	sb.WriteString("### Expected Response Format:\n")
	sb.WriteString("Answer: <Correct answer letter (A, B, C, or D)>\n")
	sb.WriteString("Explanation: <Brief explanation for the chosen answer>\n\n")
	sb.WriteString("### Example Response:\n")
	sb.WriteString("Answer: C\n")
	sb.WriteString("Explanation: Option C is correct because ...")
	return sb.String()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
