package api

import (
	"errors"
	"os"
	"strings"
)

func (s *Server) registerRoutes() error {
	if s == nil || s.router == nil {
		return nil
	}

	api := s.router.Group("/api")
	apiKey := strings.TrimSpace(os.Getenv("SECBENCH_API_KEY"))
	if apiKey != "" {
		api.Use(apiKeyAuthMiddleware(apiKey))
	} else if strings.EqualFold(strings.TrimSpace(os.Getenv("SECBENCH_DISABLE_AUTH")), "true") {
		// Explicitly allow unauthenticated access.
	} else {
		return errors.New("api: missing auth configuration: set SECBENCH_API_KEY or set SECBENCH_DISABLE_AUTH=true")
	}

	api.GET("/health", s.handleHealth)

	api.GET("/datasets", s.handleListDatasets)
	api.POST("/datasets", s.handleCreateDataset)
	api.GET("/datasets/:id", s.handleGetDataset)
	api.DELETE("/datasets/:id", s.handleDeleteDataset)
	api.POST("/datasets/:id/clone", s.handleCloneDataset)
	api.GET("/datasets/:id/questions", s.handleListQuestions)
	api.POST("/datasets/:id/questions", s.handleCreateQuestion)

	api.GET("/models", s.handleListModels)
	api.POST("/models", s.handleCreateModel)

	api.POST("/tests", s.handleCreateTest)
	api.GET("/tests", s.handleListTests)
	api.GET("/tests/:id", s.handleGetTest)
	api.GET("/tests/:id/results", s.handleGetTestResults)
	api.POST("/tests/:id/retry", s.handleRetryTest)
	api.POST("/tests/:id/recompute", s.handleRecomputeTest)
	api.DELETE("/tests/:id", s.handleDeleteTest)

	return nil
}
