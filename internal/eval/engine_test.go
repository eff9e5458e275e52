package eval

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stellarlinkco/secbench/internal/llm"
	"github.com/stellarlinkco/secbench/internal/store"
)

type fixture struct {
	store     store.Store
	dataset   *store.Dataset
	model     *store.Model
	questions []*store.Question
}

func newFixture(t *testing.T, free bool, correct []string) *fixture {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	ds := &store.Dataset{Name: "network security"}
	if err := st.CreateDataset(ctx, ds); err != nil {
		t.Fatalf("create dataset: %v", err)
	}

	modelID := "vendor/model"
	if free {
		modelID += ":free"
	}
	m := &store.Model{ModelID: modelID, Name: "model", Provider: "openrouter", Free: free}
	if err := st.CreateModel(ctx, m); err != nil {
		t.Fatalf("create model: %v", err)
	}

	questions := make([]*store.Question, len(correct))
	for i, option := range correct {
		q := &store.Question{
			DatasetID:     ds.ID,
			Text:          "question",
			OptionA:       "a",
			OptionB:       "b",
			OptionC:       "c",
			OptionD:       "d",
			CorrectOption: option,
			CreatedAt:     time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}
		if err := st.CreateQuestion(ctx, q); err != nil {
			t.Fatalf("create question: %v", err)
		}
		questions[i] = q
	}

	return &fixture{store: st, dataset: ds, model: m, questions: questions}
}

func fastEngine(st store.Store) *Engine {
	return &Engine{
		Store: st,
		Scheduler: &Scheduler{
			FreeConcurrency: 3,
			PaidConcurrency: 20,
			FreePacing:      time.Millisecond,
		},
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
	}
}

func TestRunEvaluationPersistsEverything(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, true, []string{"A", "B", "C", "D"})
	ctx := context.Background()

	// Always answers A: one correct row, three wrong ones.
	client := &fakeClient{fn: func(call int, modelID, prompt string) (*llm.Completion, error) {
		return &llm.Completion{Content: "Answer: A"}, nil
	}}

	test := &store.Test{DatasetID: fx.dataset.ID, ModelID: fx.model.ID}
	if err := fx.store.CreateTest(ctx, test); err != nil {
		t.Fatalf("create test: %v", err)
	}

	summary, err := fastEngine(fx.store).RunEvaluation(ctx, test, fx.questions, fx.model, client)
	if err != nil {
		t.Fatalf("RunEvaluation: %v", err)
	}
	if summary.TotalQuestions != 4 || summary.CorrectAnswers != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	rows, err := fx.store.ResultsByTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("ResultsByTest: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}

	stored, err := fx.store.GetTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("GetTest: %v", err)
	}
	if stored.CompletedAt.IsZero() {
		t.Fatal("CompletedAt not set")
	}
	if stored.AccuracyPercentage != 25 {
		t.Fatalf("AccuracyPercentage = %v, want 25", stored.AccuracyPercentage)
	}
	if stored.AnswerDistribution["A"] != 4 {
		t.Fatalf("AnswerDistribution = %v", stored.AnswerDistribution)
	}
}

func TestRunEvaluationFatalPersistsNothing(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, false, []string{"A", "B", "C", "D", "A", "B"})
	ctx := context.Background()

	client := &fakeClient{fn: func(call int, modelID, prompt string) (*llm.Completion, error) {
		if call == 3 {
			return nil, &llm.APIError{StatusCode: 429}
		}
		return &llm.Completion{Content: "Answer: A"}, nil
	}}

	test := &store.Test{DatasetID: fx.dataset.ID, ModelID: fx.model.ID}
	if err := fx.store.CreateTest(ctx, test); err != nil {
		t.Fatalf("create test: %v", err)
	}

	_, err := fastEngine(fx.store).RunEvaluation(ctx, test, fx.questions, fx.model, client)
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if perr.Kind != KindRateLimited {
		t.Fatalf("Kind = %v, want %v", perr.Kind, KindRateLimited)
	}

	rows, err := fx.store.ResultsByTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("ResultsByTest: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows = %d, want 0 after fatal", len(rows))
	}

	stored, err := fx.store.GetTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("GetTest: %v", err)
	}
	if !stored.CompletedAt.IsZero() {
		t.Fatal("CompletedAt set after fatal")
	}
}

func TestRetryFailedUpdatesRowsInPlace(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, true, []string{"A", "B", "C"})
	ctx := context.Background()
	engine := fastEngine(fx.store)

	test := &store.Test{DatasetID: fx.dataset.ID, ModelID: fx.model.ID}
	if err := fx.store.CreateTest(ctx, test); err != nil {
		t.Fatalf("create test: %v", err)
	}

	// Seed the first pass directly: two graded rows and one failure.
	seed := []*store.QuestionResult{
		{TestID: test.ID, QuestionID: fx.questions[0].ID, Response: "Answer: A", Answer: "A", Correct: true, ResponseTime: 0.4},
		{TestID: test.ID, QuestionID: fx.questions[1].ID, Response: "Answer: B", Answer: "B", Correct: true, ResponseTime: 0.5},
		{TestID: test.ID, QuestionID: fx.questions[2].ID, Response: "Error Response: garbled", Answer: "X"},
	}
	if err := fx.store.AppendResults(ctx, seed); err != nil {
		t.Fatalf("AppendResults: %v", err)
	}
	if _, err := engine.RecomputeMetrics(ctx, test.ID); err != nil {
		t.Fatalf("RecomputeMetrics: %v", err)
	}

	// Retry pass: the model now answers the failed question correctly.
	retryClient := &fakeClient{fn: func(call int, modelID, prompt string) (*llm.Completion, error) {
		return &llm.Completion{Content: "Answer: C"}, nil
	}}

	retried, err := engine.RetryFailed(ctx, test.ID, retryClient)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if retried != 1 {
		t.Fatalf("retried = %d, want 1", retried)
	}

	rows, err := fx.store.ResultsByTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("ResultsByTest: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3 (row count invariant)", len(rows))
	}
	if rows[2].ID != seed[2].ID {
		t.Fatalf("row id changed: %q != %q", rows[2].ID, seed[2].ID)
	}
	if rows[2].Answer != "C" || !rows[2].Correct {
		t.Fatalf("retried row = %+v", rows[2])
	}

	stored, err := fx.store.GetTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("GetTest: %v", err)
	}
	if stored.AccuracyPercentage != 100 {
		t.Fatalf("AccuracyPercentage = %v, want 100", stored.AccuracyPercentage)
	}
	if stored.FailedQueries != 0 {
		t.Fatalf("FailedQueries = %v, want 0", stored.FailedQueries)
	}
}

func TestRetryFailedNoop(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, false, []string{"A"})
	ctx := context.Background()
	engine := fastEngine(fx.store)

	test := &store.Test{DatasetID: fx.dataset.ID, ModelID: fx.model.ID}
	if err := fx.store.CreateTest(ctx, test); err != nil {
		t.Fatalf("create test: %v", err)
	}
	seed := []*store.QuestionResult{
		{TestID: test.ID, QuestionID: fx.questions[0].ID, Response: "Answer: A", Answer: "A", Correct: true, ResponseTime: 0.4},
	}
	if err := fx.store.AppendResults(ctx, seed); err != nil {
		t.Fatalf("AppendResults: %v", err)
	}

	client := &fakeClient{fn: func(call int, modelID, prompt string) (*llm.Completion, error) {
		t.Error("no provider call expected for a clean test")
		return nil, errors.New("unexpected")
	}}

	retried, err := engine.RetryFailed(ctx, test.ID, client)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if retried != 0 {
		t.Fatalf("retried = %d, want 0", retried)
	}
}

func TestRecomputeMetricsBackfills(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, false, []string{"A", "B"})
	ctx := context.Background()
	engine := fastEngine(fx.store)

	test := &store.Test{DatasetID: fx.dataset.ID, ModelID: fx.model.ID}
	if err := fx.store.CreateTest(ctx, test); err != nil {
		t.Fatalf("create test: %v", err)
	}
	seed := []*store.QuestionResult{
		{TestID: test.ID, QuestionID: fx.questions[0].ID, Answer: "A", Correct: true},
		{TestID: test.ID, QuestionID: fx.questions[1].ID, Answer: "A"},
	}
	if err := fx.store.AppendResults(ctx, seed); err != nil {
		t.Fatalf("AppendResults: %v", err)
	}

	summary, err := engine.RecomputeMetrics(ctx, test.ID)
	if err != nil {
		t.Fatalf("RecomputeMetrics: %v", err)
	}
	if summary.TotalQuestions != 2 || summary.CorrectAnswers != 1 || summary.AccuracyPercentage != 50 {
		t.Fatalf("summary = %+v", summary)
	}

	again, err := engine.RecomputeMetrics(ctx, test.ID)
	if err != nil {
		t.Fatalf("RecomputeMetrics: %v", err)
	}
	if !reflect.DeepEqual(again, summary) {
		t.Fatalf("recompute not idempotent: %+v vs %+v", again, summary)
	}

	stored, err := fx.store.GetTest(ctx, test.ID)
	if err != nil {
		t.Fatalf("GetTest: %v", err)
	}
	if stored.AccuracyPercentage != 50 || stored.TotalQuestions != 2 {
		t.Fatalf("stored summary = %+v", stored)
	}
}
