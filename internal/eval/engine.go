package eval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stellarlinkco/secbench/internal/config"
	"github.com/stellarlinkco/secbench/internal/llm"
	"github.com/stellarlinkco/secbench/internal/metrics"
	"github.com/stellarlinkco/secbench/internal/store"
)

// Engine ties the scheduler, executor, and store together behind the
// operations the API and CLI call.
type Engine struct {
	Store        store.Store
	Scheduler    *Scheduler
	MaxAttempts  int
	InitialDelay time.Duration
}

// NewEngine builds an engine from configuration. A nil config selects the
// built-in defaults.
func NewEngine(st store.Store, cfg *config.Config) *Engine {
	e := &Engine{
		Store:     st,
		Scheduler: NewScheduler(),
	}
	if cfg != nil {
		e.MaxAttempts = cfg.Evaluation.MaxAttempts
		e.InitialDelay = cfg.Evaluation.InitialDelay
		if cfg.Evaluation.FreeConcurrency > 0 {
			e.Scheduler.FreeConcurrency = cfg.Evaluation.FreeConcurrency
		}
		if cfg.Evaluation.PaidConcurrency > 0 {
			e.Scheduler.PaidConcurrency = cfg.Evaluation.PaidConcurrency
		}
		if cfg.Evaluation.FreePacing > 0 {
			e.Scheduler.FreePacing = cfg.Evaluation.FreePacing
		}
	}
	return e
}

func (e *Engine) executor(client llm.Client) *Executor {
	exec := NewExecutor(client)
	if e.MaxAttempts > 0 {
		exec.MaxAttempts = e.MaxAttempts
	}
	if e.InitialDelay > 0 {
		exec.InitialDelay = e.InitialDelay
	}
	return exec
}

// RunEvaluation executes the full batch for a freshly created test. On
// success every question has exactly one stored result, the cached metrics
// are filled in, and the completion timestamp is set. A fatal provider error
// leaves the test without any stored rows and is returned to the caller.
func (e *Engine) RunEvaluation(ctx context.Context, test *store.Test, questions []*store.Question, model *store.Model, client llm.Client) (*metrics.Summary, error) {
	if e == nil || e.Store == nil {
		return nil, errors.New("eval: nil engine")
	}
	if ctx == nil {
		return nil, errors.New("eval: nil context")
	}
	if test == nil || model == nil {
		return nil, errors.New("eval: nil test or model")
	}
	if len(questions) == 0 {
		return nil, errors.New("eval: empty question batch")
	}
	if e.Scheduler == nil {
		e.Scheduler = NewScheduler()
	}

	outcomes, err := e.Scheduler.Run(ctx, e.executor(client), model, questions)
	if err != nil {
		return nil, err
	}

	rows := make([]*store.QuestionResult, len(outcomes))
	for i, out := range outcomes {
		rows[i] = grade(test.ID, questions[i], out)
	}
	if err := e.Store.AppendResults(ctx, rows); err != nil {
		return nil, err
	}

	summary := summarize(rows)
	if err := e.Store.UpdateTestMetrics(ctx, test.ID, summary); err != nil {
		return nil, err
	}
	if err := e.Store.CompleteTest(ctx, test.ID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return summary, nil
}

// RetryFailed re-runs the failed rows of a test. See RetryCoordinator.
func (e *Engine) RetryFailed(ctx context.Context, testID string, client llm.Client) (int, error) {
	if e == nil || e.Store == nil {
		return 0, errors.New("eval: nil engine")
	}
	coord := &RetryCoordinator{Store: e.Store, Scheduler: e.Scheduler}
	return coord.RetryFailed(ctx, testID, e.executor(client))
}

// RecomputeMetrics rebuilds the cached summary of a test from its stored
// rows. Safe to call any number of times; it reads nothing but the rows.
func (e *Engine) RecomputeMetrics(ctx context.Context, testID string) (*metrics.Summary, error) {
	if e == nil || e.Store == nil {
		return nil, errors.New("eval: nil engine")
	}
	if ctx == nil {
		return nil, errors.New("eval: nil context")
	}
	return recomputeMetrics(ctx, e.Store, testID)
}

func recomputeMetrics(ctx context.Context, st store.Store, testID string) (*metrics.Summary, error) {
	rows, err := st.ResultsByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("eval: load results: %w", err)
	}

	summary := summarize(rows)
	if err := st.UpdateTestMetrics(ctx, testID, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func summarize(rows []*store.QuestionResult) *metrics.Summary {
	graded := make([]metrics.Graded, len(rows))
	for i, r := range rows {
		graded[i] = metrics.Graded{
			Expected: r.CorrectOption,
			Answer:   r.Answer,
		}
	}
	return metrics.Compute(graded)
}
