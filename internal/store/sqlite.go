package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/stellarlinkco/secbench/internal/metrics"
)

const defaultListLimit = 50

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	insertResultStmt  *sql.Stmt
	updateResultStmt  *sql.Stmt
	resultsByTestStmt *sql.Stmt
	failedByTestStmt  *sql.Stmt
	questionsStmt     *sql.Stmt
	getTestStmt       *sql.Stmt
	updateMetricsStmt *sql.Stmt
	completeTestStmt  *sql.Stmt
}

// NewSQLiteStore opens or creates a SQLite store at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: empty sqlite path")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create sqlite dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if path == ":memory:" {
		// One in-memory database per connection; keep a single connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &SQLiteStore{db: db}
	if err := st.prepareStatements(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS datasets (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner TEXT NOT NULL DEFAULT '',
			is_public INTEGER NOT NULL DEFAULT 0,
			origin_id TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id TEXT PRIMARY KEY,
			dataset_id TEXT NOT NULL,
			question TEXT NOT NULL,
			option_a TEXT NOT NULL,
			option_b TEXT NOT NULL,
			option_c TEXT NOT NULL,
			option_d TEXT NOT NULL,
			correct_option TEXT NOT NULL CHECK (correct_option IN ('A','B','C','D')),
			created_at INTEGER NOT NULL,
			FOREIGN KEY(dataset_id) REFERENCES datasets(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS models (
			id TEXT PRIMARY KEY,
			model_id TEXT NOT NULL,
			name TEXT NOT NULL,
			provider TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			free INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tests (
			id TEXT PRIMARY KEY,
			dataset_id TEXT NOT NULL,
			model_id TEXT NOT NULL,
			owner TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			completed_at INTEGER,
			total_questions INTEGER NOT NULL DEFAULT 0,
			failed_queries INTEGER NOT NULL DEFAULT 0,
			correct_answers INTEGER NOT NULL DEFAULT 0,
			accuracy_percentage REAL NOT NULL DEFAULT 0,
			ci_low REAL NOT NULL DEFAULT 0,
			ci_high REAL NOT NULL DEFAULT 0,
			precision_avg REAL NOT NULL DEFAULT 0,
			recall_avg REAL NOT NULL DEFAULT 0,
			f1_avg REAL NOT NULL DEFAULT 0,
			class_metrics TEXT NOT NULL DEFAULT '{}',
			answer_distribution TEXT NOT NULL DEFAULT '{}',
			FOREIGN KEY(dataset_id) REFERENCES datasets(id) ON DELETE CASCADE,
			FOREIGN KEY(model_id) REFERENCES models(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS question_results (
			id TEXT PRIMARY KEY,
			test_id TEXT NOT NULL,
			question_id TEXT NOT NULL,
			llm_response TEXT NOT NULL DEFAULT '',
			answer TEXT NOT NULL CHECK (answer IN ('A','B','C','D','X')),
			correct INTEGER NOT NULL DEFAULT 0,
			response_time REAL NOT NULL DEFAULT 0,
			UNIQUE(test_id, question_id),
			FOREIGN KEY(test_id) REFERENCES tests(id) ON DELETE CASCADE,
			FOREIGN KEY(question_id) REFERENCES questions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_dataset ON questions(dataset_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tests_dataset ON tests(dataset_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tests_model ON tests(model_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_test ON question_results(test_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

const resultColumns = `
	r.id, r.test_id, r.question_id, r.llm_response, r.answer, r.correct, r.response_time, q.correct_option
`

const testColumns = `
	id, dataset_id, model_id, owner, started_at, completed_at,
	total_questions, failed_queries, correct_answers, accuracy_percentage,
	ci_low, ci_high, precision_avg, recall_avg, f1_avg, class_metrics, answer_distribution
`

func (s *SQLiteStore) prepareStatements() error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}

	ctx := context.Background()
	type stmtSpec struct {
		dst    **sql.Stmt
		query  string
		errFmt string
	}

	specs := []stmtSpec{
		{
			dst: &s.insertResultStmt,
			query: `
				INSERT INTO question_results (
					id, test_id, question_id, llm_response, answer, correct, response_time
				) VALUES (?, ?, ?, ?, ?, ?, ?)
			`,
			errFmt: "store: prepare insert result: %w",
		},
		{
			dst: &s.updateResultStmt,
			query: `
				UPDATE question_results
				SET llm_response = ?, answer = ?, correct = ?, response_time = ?
				WHERE id = ?
			`,
			errFmt: "store: prepare update result: %w",
		},
		{
			dst: &s.resultsByTestStmt,
			query: `
				SELECT ` + resultColumns + `
				FROM question_results r
				JOIN questions q ON q.id = r.question_id
				WHERE r.test_id = ?
				ORDER BY q.created_at ASC, r.id ASC
			`,
			errFmt: "store: prepare results by test: %w",
		},
		{
			dst: &s.failedByTestStmt,
			query: `
				SELECT ` + resultColumns + `
				FROM question_results r
				JOIN questions q ON q.id = r.question_id
				WHERE r.test_id = ? AND r.answer = 'X'
				ORDER BY q.created_at ASC, r.id ASC
			`,
			errFmt: "store: prepare failed results: %w",
		},
		{
			dst: &s.questionsStmt,
			query: `
				SELECT id, dataset_id, question, option_a, option_b, option_c, option_d, correct_option, created_at
				FROM questions
				WHERE dataset_id = ?
				ORDER BY created_at ASC, id ASC
			`,
			errFmt: "store: prepare questions: %w",
		},
		{
			dst:    &s.getTestStmt,
			query:  `SELECT ` + testColumns + ` FROM tests WHERE id = ?`,
			errFmt: "store: prepare get test: %w",
		},
		{
			dst: &s.updateMetricsStmt,
			query: `
				UPDATE tests
				SET total_questions = ?, failed_queries = ?, correct_answers = ?,
					accuracy_percentage = ?, ci_low = ?, ci_high = ?,
					precision_avg = ?, recall_avg = ?, f1_avg = ?,
					class_metrics = ?, answer_distribution = ?
				WHERE id = ?
			`,
			errFmt: "store: prepare update metrics: %w",
		},
		{
			dst:    &s.completeTestStmt,
			query:  `UPDATE tests SET completed_at = ? WHERE id = ?`,
			errFmt: "store: prepare complete test: %w",
		},
	}

	for _, spec := range specs {
		stmt, err := s.db.PrepareContext(ctx, spec.query)
		if err != nil {
			return fmt.Errorf(spec.errFmt, err)
		}
		*spec.dst = stmt
	}

	return nil
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	stmts := []*sql.Stmt{
		s.insertResultStmt,
		s.updateResultStmt,
		s.resultsByTestStmt,
		s.failedByTestStmt,
		s.questionsStmt,
		s.getTestStmt,
		s.updateMetricsStmt,
		s.completeTestStmt,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateDataset persists a dataset, assigning an id when missing.
func (s *SQLiteStore) CreateDataset(ctx context.Context, ds *Dataset) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if ds == nil {
		return errors.New("store: nil dataset")
	}
	if strings.TrimSpace(ds.Name) == "" {
		return errors.New("store: empty dataset name")
	}

	if strings.TrimSpace(ds.ID) == "" {
		ds.ID = uuid.NewString()
	}
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO datasets (id, name, description, owner, is_public, origin_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ds.ID, ds.Name, ds.Description, ds.Owner, boolToInt(ds.Public), nullString(ds.OriginID), ds.CreatedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: insert dataset: %w", err)
	}
	return nil
}

// GetDataset loads a dataset by id.
func (s *SQLiteStore) GetDataset(ctx context.Context, id string) (*Dataset, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("store: empty dataset id")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, owner, is_public, origin_id, created_at
		FROM datasets WHERE id = ?
	`, id)
	return scanDataset(row)
}

// ListDatasets returns all datasets, newest first.
func (s *SQLiteStore) ListDatasets(ctx context.Context) ([]*Dataset, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, owner, is_public, origin_id, created_at
		FROM datasets ORDER BY created_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list datasets: %w", err)
	}
	defer rows.Close()

	var out []*Dataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list datasets: %w", err)
	}
	return out, nil
}

// DeleteDataset removes a dataset and, via cascade, its questions and tests.
func (s *SQLiteStore) DeleteDataset(ctx context.Context, id string) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("store: empty dataset id")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete dataset: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CloneDataset copies a dataset and all of its questions by value. The new
// questions get fresh identities; only the origin link ties the copies back.
func (s *SQLiteStore) CloneDataset(ctx context.Context, id, owner string) (*Dataset, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}

	src, err := s.GetDataset(ctx, id)
	if err != nil {
		return nil, err
	}
	questions, err := s.QuestionsByDataset(ctx, src.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	clone := &Dataset{
		ID:          uuid.NewString(),
		Name:        src.Name,
		Description: src.Description,
		Owner:       owner,
		OriginID:    src.ID,
		CreatedAt:   now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin clone tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO datasets (id, name, description, owner, is_public, origin_id, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, clone.ID, clone.Name, clone.Description, clone.Owner, clone.OriginID, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("store: insert dataset clone: %w", err)
	}

	for _, q := range questions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO questions (id, dataset_id, question, option_a, option_b, option_c, option_d, correct_option, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), clone.ID, q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.CorrectOption, now.UnixMilli())
		if err != nil {
			return nil, fmt.Errorf("store: copy question: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit clone: %w", err)
	}
	return clone, nil
}

// CreateQuestion persists a question, assigning an id when missing.
func (s *SQLiteStore) CreateQuestion(ctx context.Context, q *Question) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if q == nil {
		return errors.New("store: nil question")
	}
	if strings.TrimSpace(q.DatasetID) == "" {
		return errors.New("store: question missing dataset id")
	}
	if strings.TrimSpace(q.Text) == "" {
		return errors.New("store: empty question text")
	}
	correct := strings.ToUpper(strings.TrimSpace(q.CorrectOption))
	switch correct {
	case "A", "B", "C", "D":
	default:
		return fmt.Errorf("store: invalid correct option %q", q.CorrectOption)
	}
	q.CorrectOption = correct

	if strings.TrimSpace(q.ID) == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO questions (id, dataset_id, question, option_a, option_b, option_c, option_d, correct_option, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.ID, q.DatasetID, q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.CorrectOption, q.CreatedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: insert question: %w", err)
	}
	return nil
}

// QuestionsByDataset returns all questions of a dataset in creation order.
func (s *SQLiteStore) QuestionsByDataset(ctx context.Context, datasetID string) ([]*Question, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	datasetID = strings.TrimSpace(datasetID)
	if datasetID == "" {
		return nil, errors.New("store: empty dataset id")
	}

	rows, err := s.questionsStmt.QueryContext(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("store: questions by dataset: %w", err)
	}
	defer rows.Close()

	var out []*Question
	for rows.Next() {
		var q Question
		var createdMS int64
		if err := rows.Scan(&q.ID, &q.DatasetID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.CorrectOption, &createdMS); err != nil {
			return nil, fmt.Errorf("store: scan question: %w", err)
		}
		q.CreatedAt = time.UnixMilli(createdMS).UTC()
		out = append(out, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: questions by dataset: %w", err)
	}
	return out, nil
}

// CreateModel persists a model, assigning an id when missing.
func (s *SQLiteStore) CreateModel(ctx context.Context, m *Model) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if m == nil {
		return errors.New("store: nil model")
	}
	if strings.TrimSpace(m.ModelID) == "" {
		return errors.New("store: empty model id")
	}

	if strings.TrimSpace(m.ID) == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO models (id, model_id, name, provider, description, free, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ModelID, m.Name, m.Provider, m.Description, boolToInt(m.Free), m.CreatedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: insert model: %w", err)
	}
	return nil
}

// GetModel loads a model by id.
func (s *SQLiteStore) GetModel(ctx context.Context, id string) (*Model, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("store: empty model id")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, model_id, name, provider, description, free, created_at
		FROM models WHERE id = ?
	`, id)
	return scanModel(row)
}

// ListModels returns all models, newest first.
func (s *SQLiteStore) ListModels(ctx context.Context) ([]*Model, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model_id, name, provider, description, free, created_at
		FROM models ORDER BY created_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list models: %w", err)
	}
	defer rows.Close()

	var out []*Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list models: %w", err)
	}
	return out, nil
}

// CreateTest persists a new test with zeroed summary fields.
func (s *SQLiteStore) CreateTest(ctx context.Context, t *Test) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if t == nil {
		return errors.New("store: nil test")
	}
	if strings.TrimSpace(t.DatasetID) == "" || strings.TrimSpace(t.ModelID) == "" {
		return errors.New("store: test missing dataset/model id")
	}

	if strings.TrimSpace(t.ID) == "" {
		t.ID = uuid.NewString()
	}
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tests (id, dataset_id, model_id, owner, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, t.ID, t.DatasetID, t.ModelID, t.Owner, t.StartedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: insert test: %w", err)
	}
	return nil
}

// GetTest loads a test with its cached summary metrics.
func (s *SQLiteStore) GetTest(ctx context.Context, id string) (*Test, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("store: empty test id")
	}

	return scanTest(s.getTestStmt.QueryRowContext(ctx, id))
}

// ListTests returns tests matching the filter, newest first.
func (s *SQLiteStore) ListTests(ctx context.Context, filter TestFilter) ([]*Test, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}

	// Limit 0 selects the default page size; a negative limit lists everything.
	limit := filter.Limit
	if limit == 0 {
		limit = defaultListLimit
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + testColumns + ` FROM tests WHERE 1=1`)

	var args []any
	if v := strings.TrimSpace(filter.DatasetID); v != "" {
		sb.WriteString(` AND dataset_id = ?`)
		args = append(args, v)
	}
	if v := strings.TrimSpace(filter.ModelID); v != "" {
		sb.WriteString(` AND model_id = ?`)
		args = append(args, v)
	}
	if v := strings.TrimSpace(filter.Owner); v != "" {
		sb.WriteString(` AND owner = ?`)
		args = append(args, v)
	}
	sb.WriteString(` ORDER BY started_at DESC, id ASC`)
	if limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tests: %w", err)
	}
	defer rows.Close()

	var out []*Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list tests: %w", err)
	}
	return out, nil
}

// CompleteTest records the completion timestamp.
func (s *SQLiteStore) CompleteTest(ctx context.Context, id string, completedAt time.Time) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("store: empty test id")
	}
	if completedAt.IsZero() {
		return errors.New("store: zero completion time")
	}

	res, err := s.completeTestStmt.ExecContext(ctx, completedAt.UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("store: complete test: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteTest removes a test and, via cascade, its result rows.
func (s *SQLiteStore) DeleteTest(ctx context.Context, id string) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("store: empty test id")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM tests WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete test: %w", err)
	}
	return nil
}

// UpdateTestMetrics overwrites the cached summary fields of a test.
func (s *SQLiteStore) UpdateTestMetrics(ctx context.Context, id string, summary *metrics.Summary) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("store: empty test id")
	}
	if summary == nil {
		return errors.New("store: nil summary")
	}

	classJSON, err := json.Marshal(summary.ClassMetrics)
	if err != nil {
		return fmt.Errorf("store: marshal class metrics: %w", err)
	}
	distJSON, err := json.Marshal(summary.AnswerDistribution)
	if err != nil {
		return fmt.Errorf("store: marshal answer distribution: %w", err)
	}

	res, err := s.updateMetricsStmt.ExecContext(ctx,
		summary.TotalQuestions,
		summary.FailedQueries,
		summary.CorrectAnswers,
		summary.AccuracyPercentage,
		summary.ConfidenceIntervalLow,
		summary.ConfidenceIntervalHigh,
		summary.PrecisionAvg,
		summary.RecallAvg,
		summary.F1Avg,
		string(classJSON),
		string(distJSON),
		id,
	)
	if err != nil {
		return fmt.Errorf("store: update test metrics: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AppendResults inserts a batch of result rows in a single transaction.
func (s *SQLiteStore) AppendResults(ctx context.Context, results []*QuestionResult) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin results tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt := tx.StmtContext(ctx, s.insertResultStmt)
	defer stmt.Close()

	for _, r := range results {
		if r == nil {
			return errors.New("store: nil result")
		}
		if strings.TrimSpace(r.TestID) == "" || strings.TrimSpace(r.QuestionID) == "" {
			return errors.New("store: result missing test/question id")
		}
		if strings.TrimSpace(r.ID) == "" {
			r.ID = uuid.NewString()
		}
		_, err = stmt.ExecContext(ctx, r.ID, r.TestID, r.QuestionID, r.Response, r.Answer, boolToInt(r.Correct), r.ResponseTime)
		if err != nil {
			return fmt.Errorf("store: insert result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit results: %w", err)
	}
	return nil
}

// UpdateResult overwrites an existing result row in place.
func (s *SQLiteStore) UpdateResult(ctx context.Context, r *QuestionResult) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if r == nil {
		return errors.New("store: nil result")
	}
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("store: empty result id")
	}

	res, err := s.updateResultStmt.ExecContext(ctx, r.Response, r.Answer, boolToInt(r.Correct), r.ResponseTime, r.ID)
	if err != nil {
		return fmt.Errorf("store: update result: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ResultsByTest returns all result rows for a test, including the correct
// option joined from each question.
func (s *SQLiteStore) ResultsByTest(ctx context.Context, testID string) ([]*QuestionResult, error) {
	return s.queryResults(ctx, s.resultsByTestStmt, testID)
}

// FailedResultsByTest returns only the rows whose answer is the "X" sentinel.
func (s *SQLiteStore) FailedResultsByTest(ctx context.Context, testID string) ([]*QuestionResult, error) {
	return s.queryResults(ctx, s.failedByTestStmt, testID)
}

func (s *SQLiteStore) queryResults(ctx context.Context, stmt *sql.Stmt, testID string) ([]*QuestionResult, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	testID = strings.TrimSpace(testID)
	if testID == "" {
		return nil, errors.New("store: empty test id")
	}

	rows, err := stmt.QueryContext(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("store: query results: %w", err)
	}
	defer rows.Close()

	var out []*QuestionResult
	for rows.Next() {
		var r QuestionResult
		var correct int
		if err := rows.Scan(&r.ID, &r.TestID, &r.QuestionID, &r.Response, &r.Answer, &correct, &r.ResponseTime, &r.CorrectOption); err != nil {
			return nil, fmt.Errorf("store: scan result: %w", err)
		}
		r.Correct = correct != 0
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query results: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (*Dataset, error) {
	var ds Dataset
	var public int
	var origin sql.NullString
	var createdMS int64
	if err := row.Scan(&ds.ID, &ds.Name, &ds.Description, &ds.Owner, &public, &origin, &createdMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan dataset: %w", err)
	}
	ds.Public = public != 0
	if origin.Valid {
		ds.OriginID = origin.String
	}
	ds.CreatedAt = time.UnixMilli(createdMS).UTC()
	return &ds, nil
}

func scanModel(row rowScanner) (*Model, error) {
	var m Model
	var free int
	var createdMS int64
	if err := row.Scan(&m.ID, &m.ModelID, &m.Name, &m.Provider, &m.Description, &free, &createdMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan model: %w", err)
	}
	m.Free = free != 0
	m.CreatedAt = time.UnixMilli(createdMS).UTC()
	return &m, nil
}

func scanTest(row rowScanner) (*Test, error) {
	var t Test
	var startedMS int64
	var completedMS sql.NullInt64
	var classJSON, distJSON string
	err := row.Scan(
		&t.ID, &t.DatasetID, &t.ModelID, &t.Owner, &startedMS, &completedMS,
		&t.TotalQuestions, &t.FailedQueries, &t.CorrectAnswers, &t.AccuracyPercentage,
		&t.ConfidenceIntervalLow, &t.ConfidenceIntervalHigh,
		&t.PrecisionAvg, &t.RecallAvg, &t.F1Avg, &classJSON, &distJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan test: %w", err)
	}

	t.StartedAt = time.UnixMilli(startedMS).UTC()
	if completedMS.Valid {
		t.CompletedAt = time.UnixMilli(completedMS.Int64).UTC()
	}
	if err := json.Unmarshal([]byte(classJSON), &t.ClassMetrics); err != nil {
		return nil, fmt.Errorf("store: decode class metrics: %w", err)
	}
	if err := json.Unmarshal([]byte(distJSON), &t.AnswerDistribution); err != nil {
		return nil, fmt.Errorf("store: decode answer distribution: %w", err)
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
