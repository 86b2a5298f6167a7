package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/floworc/floworc/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RunSubmitRequest represents a run submission request
type RunSubmitRequest struct {
	Graph string                 `json:"graph" binding:"required"`
	Input map[string]interface{} `json:"input"`

	// Optional per-run overrides; zero keeps the daemon defaults.
	ConcurrencyLimit int `json:"concurrency_limit"`
	MaxNestingDepth  int `json:"max_nesting_depth"`
	GraphRepeatLimit int `json:"graph_repeat_limit"`
}

// RunSubmitResponse represents a run submission response
type RunSubmitResponse struct {
	RunID       string `json:"run_id"`
	Graph       string `json:"graph"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": gin.H{
			"orchestrator": "ok",
		},
	})
}

// handleSubmitRun handles run submission
func (s *Server) handleSubmitRun(c *gin.Context) {
	var req RunSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Error("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	opts := domain.RunOptions{
		ConcurrencyLimit: req.ConcurrencyLimit,
		MaxNestingDepth:  req.MaxNestingDepth,
		GraphRepeatLimit: req.GraphRepeatLimit,
	}

	runID, err := s.manager.Submit(c.Request.Context(), req.Graph, req.Input, opts)
	if err != nil {
		s.writeSubmitError(c, err)
		return
	}

	c.JSON(http.StatusCreated, RunSubmitResponse{
		RunID:       runID,
		Graph:       req.Graph,
		Status:      "submitted",
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// writeSubmitError maps submission failures to status codes
func (s *Server) writeSubmitError(c *gin.Context, err error) {
	var inputErr *domain.InputValidationError

	switch {
	case errors.Is(err, domain.ErrGraphNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "GRAPH_NOT_FOUND",
				Message: err.Error(),
			},
		})
	case errors.As(err, &inputErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_INPUT",
				Message: err.Error(),
				Details: gin.H{"input": inputErr.Input},
			},
		})
	default:
		s.logger.Error("failed to submit run", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    "SUBMISSION_FAILED",
				Message: err.Error(),
			},
		})
	}
}

// handleListRuns handles listing runs: active runs plus archived run ids
func (s *Server) handleListRuns(c *gin.Context) {
	active := s.manager.ActiveRuns()

	archived, err := s.manager.ArchivedRuns(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list archived runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{
				Code:    "ARCHIVE_ERROR",
				Message: "Failed to list archived runs",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"active":   active,
		"archived": archived,
	})
}

// handleGetStatus handles getting run status
func (s *Server) handleGetStatus(c *gin.Context) {
	runID := c.Param("id")

	status, err := s.manager.GetStatus(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "RUN_NOT_FOUND",
				Message: "Run not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// handleGetResult handles getting the full result of a finished run
func (s *Server) handleGetResult(c *gin.Context) {
	runID := c.Param("id")

	result, err := s.manager.GetResult(c.Request.Context(), runID)
	if err != nil {
		// A run still in flight has status but no archived result yet.
		if status, serr := s.manager.GetStatus(c.Request.Context(), runID); serr == nil && !status.Status.Terminal() {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: ErrorDetail{
					Code:    "NOT_COMPLETED",
					Message: "Run not yet completed",
				},
			})
			return
		}
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "RUN_NOT_FOUND",
				Message: "Run not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleCancelRun handles run cancellation
func (s *Server) handleCancelRun(c *gin.Context) {
	runID := c.Param("id")

	if err := s.manager.CancelRun(runID); err != nil {
		status := http.StatusConflict
		if errors.Is(err, domain.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{
			Error: ErrorDetail{
				Code:    "CANCELLATION_FAILED",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":       runID,
		"status":       "cancelling",
		"cancelled_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListGraphs handles listing registered graphs
func (s *Server) handleListGraphs(c *gin.Context) {
	names := s.manager.Registry().Names()

	c.JSON(http.StatusOK, gin.H{
		"graphs": names,
		"total":  len(names),
	})
}
