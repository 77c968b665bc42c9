package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sortdesk/mailpilot/internal/model"
	"github.com/sortdesk/mailpilot/pkg/metrics"
)

// QueueSelector is the ranker surface the queue endpoints need.
type QueueSelector interface {
	SelectQueue(ctx context.Context, userID int64, limit int, includeReviewed bool) (*model.Queue, error)
	MarkReviewed(ctx context.Context, userID, emailID int64) error
}

type QueueHandler struct {
	ranker QueueSelector
	logger *zap.Logger
}

func NewQueueHandler(ranker QueueSelector, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{ranker: ranker, logger: logger}
}

// GetReviewQueue handles GET /review-queue.
// Query: user_id, limit (default 10, clamped 1-25), include_reviewed.
// Response: items (ordered), stats (over the returned page), totalInQueue
// (full eligible set), lastUpdated (generation time, not data time).
func (h *QueueHandler) GetReviewQueue(c *gin.Context) {
	start := time.Now()

	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	includeReviewed := c.Query("include_reviewed") == "true"

	q, err := h.ranker.SelectQueue(c.Request.Context(), userID, limit, includeReviewed)
	if err != nil {
		h.logger.Error("Failed to build review queue",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build review queue"})
		return
	}

	metrics.ObserveQueueRequest(time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"items":        q.Items,
		"stats":        q.Stats,
		"totalInQueue": q.TotalInQueue,
		"lastUpdated":  q.GeneratedAt.UTC().Format(time.RFC3339),
	})
}

// MarkReviewed handles POST /emails/:id/reviewed.
func (h *QueueHandler) MarkReviewed(c *gin.Context) {
	emailID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || emailID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email id"})
		return
	}

	var body struct {
		UserID int64 `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.UserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	if err := h.ranker.MarkReviewed(c.Request.Context(), body.UserID, emailID); err != nil {
		h.logger.Error("Failed to mark reviewed",
			zap.Int64("user_id", body.UserID),
			zap.Int64("email_id", emailID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark reviewed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reviewed"})
}
