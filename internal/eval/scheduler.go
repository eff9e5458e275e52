package eval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/stellarlinkco/secbench/internal/metrics"
	"github.com/stellarlinkco/secbench/internal/store"
)

const (
	defaultFreeConcurrency = 3
	defaultPaidConcurrency = 20
	defaultFreePacing      = time.Second
)

// Scheduler fans a batch of questions out across a bounded number of
// concurrent provider calls. Free-tier models get a small cap plus a pacing
// delay after each call; paid models get a wider cap and no pacing.
type Scheduler struct {
	FreeConcurrency int
	PaidConcurrency int
	FreePacing      time.Duration
}

// NewScheduler builds a scheduler with the default caps.
func NewScheduler() *Scheduler {
	return &Scheduler{
		FreeConcurrency: defaultFreeConcurrency,
		PaidConcurrency: defaultPaidConcurrency,
		FreePacing:      defaultFreePacing,
	}
}

func (s *Scheduler) capFor(model *store.Model) (int, time.Duration) {
	if model != nil && model.Free {
		cap := s.FreeConcurrency
		if cap <= 0 {
			cap = defaultFreeConcurrency
		}
		pacing := s.FreePacing
		if pacing < 0 {
			pacing = defaultFreePacing
		}
		return cap, pacing
	}
	cap := s.PaidConcurrency
	if cap <= 0 {
		cap = defaultPaidConcurrency
	}
	return cap, 0
}

// Run executes every question through the executor under the gate policy for
// the model. On success it returns one outcome per question, index-aligned
// with the input. The first fatal error cancels unstarted work, lets
// in-flight calls drain, and is returned with no outcomes.
func (s *Scheduler) Run(ctx context.Context, exec *Executor, model *store.Model, questions []*store.Question) ([]*Outcome, error) {
	if s == nil {
		return nil, errors.New("eval: nil scheduler")
	}
	if ctx == nil {
		return nil, errors.New("eval: nil context")
	}
	if exec == nil {
		return nil, errors.New("eval: nil executor")
	}
	if model == nil {
		return nil, errors.New("eval: nil model")
	}
	if len(questions) == 0 {
		return nil, nil
	}

	capacity, pacing := s.capFor(model)
	sem := make(chan struct{}, capacity)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make([]*Outcome, len(questions))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		fatalErr error
	)

	for i := range questions {
		if runCtx.Err() != nil {
			break
		}

		idx := i
		q := questions[i]

		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-runCtx.Done():
				return
			}
			defer func() {
				if pacing > 0 {
					_ = sleepWithContext(runCtx, pacing)
				}
				<-sem
			}()

			out, err := exec.Execute(runCtx, model.ModelID, q)
			if err != nil {
				mu.Lock()
				if fatalErr == nil {
					fatalErr = err
				}
				mu.Unlock()
				cancel()
				return
			}
			outcomes[idx] = out
		}()
	}
	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, out := range outcomes {
		if out == nil {
			return nil, errors.New("eval: incomplete batch")
		}
	}
	return outcomes, nil
}

// grade builds a result row from an outcome. The failure sentinel is never
// counted correct even if a dataset row were mislabeled with it.
func grade(testID string, q *store.Question, out *Outcome) *store.QuestionResult {
	answer := strings.ToUpper(strings.TrimSpace(out.Answer))
	correct := answer != metrics.Failed && strings.EqualFold(answer, strings.TrimSpace(q.CorrectOption))
	return &store.QuestionResult{
		TestID:        testID,
		QuestionID:    q.ID,
		Response:      out.Content,
		Answer:        answer,
		Correct:       correct,
		ResponseTime:  out.ResponseTime,
		CorrectOption: strings.ToUpper(strings.TrimSpace(q.CorrectOption)),
	}
}
