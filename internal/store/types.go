package store

import (
	"context"
	"time"

	"github.com/stellarlinkco/secbench/internal/metrics"
)

// DatasetStore defines persistence for datasets and their questions.
type DatasetStore interface {
	CreateDataset(ctx context.Context, ds *Dataset) error
	GetDataset(ctx context.Context, id string) (*Dataset, error)
	ListDatasets(ctx context.Context) ([]*Dataset, error)
	DeleteDataset(ctx context.Context, id string) error
	// CloneDataset copies a dataset and its questions by value for a new
	// owner. The clone records the source dataset as its origin; the link is
	// informational only.
	CloneDataset(ctx context.Context, id, owner string) (*Dataset, error)

	CreateQuestion(ctx context.Context, q *Question) error
	QuestionsByDataset(ctx context.Context, datasetID string) ([]*Question, error)
}

// ModelStore defines persistence for the evaluated LLM models.
type ModelStore interface {
	CreateModel(ctx context.Context, m *Model) error
	GetModel(ctx context.Context, id string) (*Model, error)
	ListModels(ctx context.Context) ([]*Model, error)
}

// TestStore defines persistence for evaluation runs.
type TestStore interface {
	CreateTest(ctx context.Context, t *Test) error
	GetTest(ctx context.Context, id string) (*Test, error)
	ListTests(ctx context.Context, filter TestFilter) ([]*Test, error)
	CompleteTest(ctx context.Context, id string, completedAt time.Time) error
	DeleteTest(ctx context.Context, id string) error
	UpdateTestMetrics(ctx context.Context, id string, summary *metrics.Summary) error
}

// ResultStore defines persistence for per-question results. Rows are
// append-only during the initial batch and updated in place only on retries.
type ResultStore interface {
	AppendResults(ctx context.Context, results []*QuestionResult) error
	UpdateResult(ctx context.Context, r *QuestionResult) error
	ResultsByTest(ctx context.Context, testID string) ([]*QuestionResult, error)
	FailedResultsByTest(ctx context.Context, testID string) ([]*QuestionResult, error)
}

// Store combines all persistence surfaces.
type Store interface {
	DatasetStore
	ModelStore
	TestStore
	ResultStore
	Close() error
}

// Dataset is a named collection of questions. Owner may be empty for shared
// library datasets; OriginID is set on clones.
type Dataset struct {
	ID          string
	Name        string
	Description string
	Owner       string
	Public      bool
	OriginID    string
	CreatedAt   time.Time
}

// Question is one multiple-choice question. Immutable once created.
type Question struct {
	ID            string
	DatasetID     string
	Text          string
	OptionA       string
	OptionB       string
	OptionC       string
	OptionD       string
	CorrectOption string // one of A, B, C, D
	CreatedAt     time.Time
}

// Model identifies an evaluated LLM. Free-tier models are scheduled under a
// smaller concurrency cap with inter-request pacing.
type Model struct {
	ID          string
	ModelID     string // provider-qualified id, e.g. "mistralai/mistral-small:free"
	Name        string
	Provider    string
	Description string
	Free        bool
	CreatedAt   time.Time
}

// Test is one evaluation run of a dataset against a model. Summary fields
// are caches recomputable from the result rows at any time.
type Test struct {
	ID          string
	DatasetID   string
	ModelID     string
	Owner       string
	StartedAt   time.Time
	CompletedAt time.Time // zero until the batch fully resolves

	TotalQuestions         int
	FailedQueries          int
	CorrectAnswers         int
	AccuracyPercentage     float64
	ConfidenceIntervalLow  float64
	ConfidenceIntervalHigh float64
	PrecisionAvg           float64
	RecallAvg              float64
	F1Avg                  float64
	ClassMetrics           map[string]metrics.ClassMetric
	AnswerDistribution     map[string]int
}

// QuestionResult is one graded model response. CorrectOption is populated on
// reads (joined from the question) and ignored on writes.
type QuestionResult struct {
	ID            string
	TestID        string
	QuestionID    string
	Response      string
	Answer        string // A-D, or "X" when extraction exhausted its retries
	Correct       bool
	ResponseTime  float64 // seconds
	CorrectOption string
}

// TestFilter narrows test listings.
type TestFilter struct {
	DatasetID string
	ModelID   string
	Owner     string
	Limit     int
}
