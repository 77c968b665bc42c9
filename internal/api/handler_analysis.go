package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sortdesk/mailpilot/internal/invalidate"
	"github.com/sortdesk/mailpilot/internal/model"
	"github.com/sortdesk/mailpilot/internal/pipeline"
	"github.com/sortdesk/mailpilot/internal/repository"
	"github.com/sortdesk/mailpilot/pkg/trace"
)

// BatchRunner is the processor surface the batch endpoint drives.
type BatchRunner interface {
	ProcessBatch(ctx context.Context, emailIDs []int64, uc *model.UserContext, opts pipeline.Options) (*model.BatchRun, error)
}

// Invalidator is the invalidation surface the rescan endpoint drives.
type Invalidator interface {
	Invalidate(ctx context.Context, emailIDs []int64) (*invalidate.Report, error)
}

// ContextProvider loads the per-user analysis context.
type ContextProvider interface {
	GetByUserID(ctx context.Context, userID int64) (*model.UserContext, error)
}

// AnalysisReader loads persisted raw rows for the analysis read endpoint.
type AnalysisReader interface {
	GetByEmailID(ctx context.Context, emailID int64) (*model.RawAnalysisRow, error)
}

type AnalysisHandler struct {
	processor   BatchRunner
	invalidator Invalidator
	contexts    ContextProvider
	analyses    AnalysisReader
	normalize   func(*model.RawAnalysisRow) *model.EmailAnalysis
	logger      *zap.Logger
}

func NewAnalysisHandler(processor BatchRunner, invalidator Invalidator, contexts ContextProvider, analyses AnalysisReader, normalizeFn func(*model.RawAnalysisRow) *model.EmailAnalysis, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		processor:   processor,
		invalidator: invalidator,
		contexts:    contexts,
		analyses:    analyses,
		normalize:   normalizeFn,
		logger:      logger,
	}
}

type batchRequest struct {
	UserID       int64   `json:"user_id"`
	EmailIDs     []int64 `json:"email_ids"`
	SkipAnalyzed *bool   `json:"skip_analyzed"`
	BatchSize    int     `json:"batch_size"`
}

// RunBatch handles POST /analysis/batch.
func (h *AnalysisHandler) RunBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := trace.WithContext(c.Request.Context(), trace.GenerateTraceID())

	uc, err := h.contexts.GetByUserID(ctx, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user context"})
		return
	}

	// Skip already-analyzed emails unless the caller opts out.
	skipAnalyzed := true
	if req.SkipAnalyzed != nil {
		skipAnalyzed = *req.SkipAnalyzed
	}

	run, err := h.processor.ProcessBatch(ctx, req.EmailIDs, uc, pipeline.Options{
		BatchSize:    req.BatchSize,
		SkipAnalyzed: skipAnalyzed,
	})
	if err != nil {
		var vErr *model.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Reason})
			return
		}
		h.logger.Error("Batch run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "batch run failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batchId":         run.ID,
		"succeeded":       run.Succeeded,
		"failed":          run.Failed,
		"skippedAnalyzed": run.SkippedAnalyzed,
		"skippedQuota":    run.SkippedQuota,
		"categorized":     run.Categorized,
		"withActions":     run.WithActions,
		"totalTokens":     run.TotalTokens,
		"costUsd":         run.EstimatedCostUSD,
		"durationMs":      run.Duration.Milliseconds(),
		"errors":          run.Errors,
	})
}

type invalidateRequest struct {
	EmailIDs []int64 `json:"email_ids"`
}

// Invalidate handles POST /analysis/invalidate.
func (h *AnalysisHandler) Invalidate(c *gin.Context) {
	var req invalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	report, err := h.invalidator.Invalidate(c.Request.Context(), req.EmailIDs)
	if err != nil {
		var vErr *model.ValidationError
		if errors.As(err, &vErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Reason})
			return
		}
		h.logger.Error("Invalidation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalidation failed"})
		return
	}

	warnings := make([]string, 0, len(report.Warnings))
	for _, w := range report.Warnings {
		warnings = append(warnings, w.Table+": "+w.Err.Error())
	}
	c.JSON(http.StatusOK, gin.H{
		"invalidated": report.EmailCount,
		"deletedRows": report.DeletedRows,
		"warnings":    warnings,
	})
}

// GetAnalysis handles GET /emails/:id/analysis, normalizing the persisted
// row on the way out so rows written by older analyzer versions stay
// readable.
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	emailID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || emailID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email id"})
		return
	}

	row, err := h.analyses.GetByEmailID(c.Request.Context(), emailID)
	if err != nil {
		if errors.Is(err, repository.ErrAnalysisNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no analysis for email"})
			return
		}
		h.logger.Error("Failed to load analysis", zap.Int64("email_id", emailID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load analysis"})
		return
	}

	c.JSON(http.StatusOK, h.normalize(row))
}
