package eval

import (
	"context"
	"errors"
	"fmt"

	"github.com/stellarlinkco/secbench/internal/store"
)

// RetryCoordinator re-runs the failed rows of a completed test. Each retried
// row is updated in place, so the test's row count never changes.
type RetryCoordinator struct {
	Store     store.Store
	Scheduler *Scheduler
}

// RetryFailed re-executes every "X" row of the test with a fresh retry
// budget under the model's usual gate policy, then recomputes the cached
// metrics. It returns the number of rows retried; zero means there was
// nothing to do and the stored state is untouched.
func (c *RetryCoordinator) RetryFailed(ctx context.Context, testID string, exec *Executor) (int, error) {
	if c == nil || c.Store == nil {
		return 0, errors.New("eval: nil retry coordinator")
	}
	if ctx == nil {
		return 0, errors.New("eval: nil context")
	}
	if c.Scheduler == nil {
		c.Scheduler = NewScheduler()
	}

	test, err := c.Store.GetTest(ctx, testID)
	if err != nil {
		return 0, fmt.Errorf("eval: load test: %w", err)
	}
	model, err := c.Store.GetModel(ctx, test.ModelID)
	if err != nil {
		return 0, fmt.Errorf("eval: load model: %w", err)
	}

	failed, err := c.Store.FailedResultsByTest(ctx, testID)
	if err != nil {
		return 0, fmt.Errorf("eval: load failed results: %w", err)
	}
	if len(failed) == 0 {
		return 0, nil
	}

	questions, err := c.Store.QuestionsByDataset(ctx, test.DatasetID)
	if err != nil {
		return 0, fmt.Errorf("eval: load questions: %w", err)
	}
	byID := make(map[string]*store.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	batch := make([]*store.Question, 0, len(failed))
	for _, r := range failed {
		q, ok := byID[r.QuestionID]
		if !ok {
			return 0, fmt.Errorf("eval: result %s references missing question %s", r.ID, r.QuestionID)
		}
		batch = append(batch, q)
	}

	outcomes, err := c.Scheduler.Run(ctx, exec, model, batch)
	if err != nil {
		return 0, err
	}

	for i, out := range outcomes {
		row := grade(testID, batch[i], out)
		row.ID = failed[i].ID
		if err := c.Store.UpdateResult(ctx, row); err != nil {
			return 0, err
		}
	}

	if _, err := recomputeMetrics(ctx, c.Store, testID); err != nil {
		return 0, err
	}
	return len(failed), nil
}
