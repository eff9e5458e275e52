package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stellarlinkco/secbench/internal/eval"
	"github.com/stellarlinkco/secbench/internal/llm"
	"github.com/stellarlinkco/secbench/internal/metrics"
	"github.com/stellarlinkco/secbench/internal/store"
)

const providerKeyHeader = "X-Provider-Key"

type datasetRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
	Public      bool   `json:"public"`
}

type cloneRequest struct {
	Owner string `json:"owner"`
}

type questionRequest struct {
	Text          string `json:"text"`
	OptionA       string `json:"option_a"`
	OptionB       string `json:"option_b"`
	OptionC       string `json:"option_c"`
	OptionD       string `json:"option_d"`
	CorrectOption string `json:"correct_option"`
}

type modelRequest struct {
	ModelID     string `json:"model_id"`
	Name        string `json:"name"`
	Provider    string `json:"provider"`
	Description string `json:"description"`
	Free        *bool  `json:"free,omitempty"`
}

type testRequest struct {
	DatasetID string `json:"dataset_id"`
	ModelID   string `json:"model_id"`
	Owner     string `json:"owner"`
}

type datasetResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       string `json:"owner,omitempty"`
	Public      bool   `json:"public"`
	OriginID    string `json:"origin_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type questionResponse struct {
	ID            string `json:"id"`
	DatasetID     string `json:"dataset_id"`
	Text          string `json:"text"`
	OptionA       string `json:"option_a"`
	OptionB       string `json:"option_b"`
	OptionC       string `json:"option_c"`
	OptionD       string `json:"option_d"`
	CorrectOption string `json:"correct_option"`
}

type modelResponse struct {
	ID          string `json:"id"`
	ModelID     string `json:"model_id"`
	Name        string `json:"name"`
	Provider    string `json:"provider,omitempty"`
	Description string `json:"description,omitempty"`
	Free        bool   `json:"free"`
	CreatedAt   string `json:"created_at"`
}

type testResponse struct {
	ID          string `json:"id"`
	DatasetID   string `json:"dataset_id"`
	ModelID     string `json:"model_id"`
	Owner       string `json:"owner,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`

	TotalQuestions         int                            `json:"total_questions"`
	FailedQueries          int                            `json:"failed_queries"`
	CorrectAnswers         int                            `json:"correct_answers"`
	AccuracyPercentage     float64                        `json:"accuracy_percentage"`
	ConfidenceIntervalLow  float64                        `json:"ci_low"`
	ConfidenceIntervalHigh float64                        `json:"ci_high"`
	PrecisionAvg           float64                        `json:"precision_avg"`
	RecallAvg              float64                        `json:"recall_avg"`
	F1Avg                  float64                        `json:"f1_avg"`
	ClassMetrics           map[string]metrics.ClassMetric `json:"class_metrics"`
	AnswerDistribution     map[string]int                 `json:"answer_distribution"`
}

type resultResponse struct {
	ID            string  `json:"id"`
	QuestionID    string  `json:"question_id"`
	Response      string  `json:"llm_response"`
	Answer        string  `json:"answer"`
	Correct       bool    `json:"correct"`
	ResponseTime  float64 `json:"response_time"`
	CorrectOption string  `json:"correct_option"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListDatasets(c *gin.Context) {
	datasets, err := s.store.ListDatasets(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	out := make([]datasetResponse, 0, len(datasets))
	for _, ds := range datasets {
		out = append(out, toDatasetResponse(ds))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateDataset(c *gin.Context) {
	var req datasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing dataset name"))
		return
	}

	ds := &store.Dataset{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Owner:       strings.TrimSpace(req.Owner),
		Public:      req.Public,
	}
	if err := s.store.CreateDataset(c.Request.Context(), ds); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, toDatasetResponse(ds))
}

func (s *Server) handleGetDataset(c *gin.Context) {
	ds, err := s.store.GetDataset(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, errors.New("dataset not found"))
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, toDatasetResponse(ds))
}

func (s *Server) handleDeleteDataset(c *gin.Context) {
	err := s.store.DeleteDataset(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, errors.New("dataset not found"))
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCloneDataset(c *gin.Context) {
	var req cloneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Body is optional; a clone without one just gets no owner.
		req = cloneRequest{}
	}

	clone, err := s.store.CloneDataset(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.Owner))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, errors.New("dataset not found"))
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, toDatasetResponse(clone))
}

func (s *Server) handleListQuestions(c *gin.Context) {
	questions, err := s.store.QuestionsByDataset(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	out := make([]questionResponse, 0, len(questions))
	for _, q := range questions {
		out = append(out, toQuestionResponse(q))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateQuestion(c *gin.Context) {
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	q := &store.Question{
		DatasetID:     c.Param("id"),
		Text:          strings.TrimSpace(req.Text),
		OptionA:       req.OptionA,
		OptionB:       req.OptionB,
		OptionC:       req.OptionC,
		OptionD:       req.OptionD,
		CorrectOption: req.CorrectOption,
	}
	if err := s.store.CreateQuestion(c.Request.Context(), q); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusCreated, toQuestionResponse(q))
}

func (s *Server) handleListModels(c *gin.Context) {
	models, err := s.store.ListModels(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	out := make([]modelResponse, 0, len(models))
	for _, m := range models {
		out = append(out, toModelResponse(m))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleCreateModel(c *gin.Context) {
	var req modelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.ModelID) == "" {
		respondError(c, http.StatusBadRequest, errors.New("missing model_id"))
		return
	}

	free := llm.IsFreeModel(req.ModelID)
	if req.Free != nil {
		free = *req.Free
	}

	m := &store.Model{
		ModelID:     strings.TrimSpace(req.ModelID),
		Name:        strings.TrimSpace(req.Name),
		Provider:    strings.TrimSpace(req.Provider),
		Description: strings.TrimSpace(req.Description),
		Free:        free,
	}
	if err := s.store.CreateModel(c.Request.Context(), m); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, toModelResponse(m))
}

func (s *Server) handleCreateTest(c *gin.Context) {
	var req testRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	ctx := c.Request.Context()

	dataset, err := s.store.GetDataset(ctx, req.DatasetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, errors.New("dataset not found"))
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	model, err := s.store.GetModel(ctx, req.ModelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, errors.New("model not found"))
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	questions, err := s.store.QuestionsByDataset(ctx, dataset.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if len(questions) == 0 {
		respondError(c, http.StatusBadRequest, errors.New("dataset has no questions"))
		return
	}

	client, err := s.providerClient(c, model)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	test := &store.Test{
		DatasetID: dataset.ID,
		ModelID:   model.ID,
		Owner:     strings.TrimSpace(req.Owner),
	}
	if err := s.store.CreateTest(ctx, test); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	if _, err := s.engine.RunEvaluation(ctx, test, questions, model, client); err != nil {
		_ = s.store.DeleteTest(ctx, test.ID)
		respondProviderError(c, err)
		return
	}

	stored, err := s.store.GetTest(ctx, test.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, toTestResponse(stored))
}

func (s *Server) handleListTests(c *gin.Context) {
	limit, err := parseLimitParam(c.Query("limit"), 0)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	filter := store.TestFilter{
		DatasetID: strings.TrimSpace(c.Query("dataset_id")),
		ModelID:   strings.TrimSpace(c.Query("model_id")),
		Owner:     strings.TrimSpace(c.Query("owner")),
		Limit:     limit,
	}
	tests, err := s.store.ListTests(c.Request.Context(), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	out := make([]testResponse, 0, len(tests))
	for _, t := range tests {
		out = append(out, toTestResponse(t))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetTest(c *gin.Context) {
	t, err := s.store.GetTest(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, errors.New("test not found"))
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, toTestResponse(t))
}

func (s *Server) handleGetTestResults(c *gin.Context) {
	results, err := s.store.ResultsByTest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	out := make([]resultResponse, 0, len(results))
	for _, r := range results {
		out = append(out, resultResponse{
			ID:            r.ID,
			QuestionID:    r.QuestionID,
			Response:      r.Response,
			Answer:        r.Answer,
			Correct:       r.Correct,
			ResponseTime:  r.ResponseTime,
			CorrectOption: r.CorrectOption,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleRetryTest(c *gin.Context) {
	ctx := c.Request.Context()
	testID := c.Param("id")

	t, err := s.store.GetTest(ctx, testID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, errors.New("test not found"))
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	model, err := s.store.GetModel(ctx, t.ModelID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	client, err := s.providerClient(c, model)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	retried, err := s.engine.RetryFailed(ctx, testID, client)
	if err != nil {
		respondProviderError(c, err)
		return
	}

	stored, err := s.store.GetTest(ctx, testID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"retried": retried,
		"test":    toTestResponse(stored),
	})
}

func (s *Server) handleRecomputeTest(c *gin.Context) {
	ctx := c.Request.Context()
	testID := c.Param("id")

	if _, err := s.store.GetTest(ctx, testID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, http.StatusNotFound, errors.New("test not found"))
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	if _, err := s.engine.RecomputeMetrics(ctx, testID); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	stored, err := s.store.GetTest(ctx, testID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, toTestResponse(stored))
}

func (s *Server) handleDeleteTest(c *gin.Context) {
	if err := s.store.DeleteTest(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// providerClient builds a per-request provider client. The key comes from the
// X-Provider-Key header when present, otherwise from configuration; a missing
// key fails here, before any batch starts.
func (s *Server) providerClient(c *gin.Context, model *store.Model) (llm.Client, error) {
	provider := strings.TrimSpace(model.Provider)
	apiKey := strings.TrimSpace(c.GetHeader(providerKeyHeader))
	baseURL := ""

	if s.config != nil {
		if provider == "" {
			provider = s.config.Provider.Name
		}
		if apiKey == "" {
			apiKey = s.config.Provider.APIKey
		}
		baseURL = s.config.Provider.BaseURL
	}
	if apiKey == "" {
		return nil, fmt.Errorf("missing provider api key: set the %s header or configure one", providerKeyHeader)
	}
	return llm.NewClient(provider, apiKey, baseURL)
}

func respondProviderError(c *gin.Context, err error) {
	var perr *eval.ProviderError
	if errors.As(err, &perr) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error": perr.Error(),
			"kind":  perr.Kind.String(),
		})
		return
	}
	respondError(c, http.StatusInternalServerError, err)
}

func respondError(c *gin.Context, status int, err error) {
	if err == nil {
		c.Status(status)
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseLimitParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return n, nil
}

func toDatasetResponse(ds *store.Dataset) datasetResponse {
	return datasetResponse{
		ID:          ds.ID,
		Name:        ds.Name,
		Description: ds.Description,
		Owner:       ds.Owner,
		Public:      ds.Public,
		OriginID:    ds.OriginID,
		CreatedAt:   ds.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toQuestionResponse(q *store.Question) questionResponse {
	return questionResponse{
		ID:            q.ID,
		DatasetID:     q.DatasetID,
		Text:          q.Text,
		OptionA:       q.OptionA,
		OptionB:       q.OptionB,
		OptionC:       q.OptionC,
		OptionD:       q.OptionD,
		CorrectOption: q.CorrectOption,
	}
}

func toModelResponse(m *store.Model) modelResponse {
	return modelResponse{
		ID:          m.ID,
		ModelID:     m.ModelID,
		Name:        m.Name,
		Provider:    m.Provider,
		Description: m.Description,
		Free:        m.Free,
		CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toTestResponse(t *store.Test) testResponse {
	out := testResponse{
		ID:                     t.ID,
		DatasetID:              t.DatasetID,
		ModelID:                t.ModelID,
		Owner:                  t.Owner,
		StartedAt:              t.StartedAt.UTC().Format(time.RFC3339),
		TotalQuestions:         t.TotalQuestions,
		FailedQueries:          t.FailedQueries,
		CorrectAnswers:         t.CorrectAnswers,
		AccuracyPercentage:     t.AccuracyPercentage,
		ConfidenceIntervalLow:  t.ConfidenceIntervalLow,
		ConfidenceIntervalHigh: t.ConfidenceIntervalHigh,
		PrecisionAvg:           t.PrecisionAvg,
		RecallAvg:              t.RecallAvg,
		F1Avg:                  t.F1Avg,
		ClassMetrics:           t.ClassMetrics,
		AnswerDistribution:     t.AnswerDistribution,
	}
	if !t.CompletedAt.IsZero() {
		out.CompletedAt = t.CompletedAt.UTC().Format(time.RFC3339)
	}
	return out
}
