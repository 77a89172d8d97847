package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"www.github.com/Wanderer0074348/RoastRouter/src/budget"
	"www.github.com/Wanderer0074348/RoastRouter/src/chat"
	"www.github.com/Wanderer0074348/RoastRouter/src/logger"
	"www.github.com/Wanderer0074348/RoastRouter/src/middleware"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
	"www.github.com/Wanderer0074348/RoastRouter/src/router"
	"www.github.com/Wanderer0074348/RoastRouter/src/telemetry"
)

type ChatService interface {
	Handle(ctx context.Context, userID string, req *models.ChatRequest) (*models.ChatResponse, error)
}

type UsageReporter interface {
	Usage(ctx context.Context, userID string) models.UsageSnapshot
}

type HistoryClearer interface {
	Clear(ctx context.Context, userID string) error
}

type ContextInvalidator interface {
	Invalidate(ctx context.Context, userID string, tier models.CacheTier) error
}

type SummaryReader interface {
	Summary(ctx context.Context, userID string, since time.Time) ([]telemetry.ModelSummary, error)
}

type ChatHandler struct {
	service     ChatService
	usage       UsageReporter
	history     HistoryClearer     // optional
	invalidator ContextInvalidator // optional
	analytics   SummaryReader      // optional
}

func NewChatHandler(service ChatService, usage UsageReporter) *ChatHandler {
	return &ChatHandler{
		service: service,
		usage:   usage,
	}
}

func (h *ChatHandler) SetHistory(history HistoryClearer) {
	h.history = history
}

func (h *ChatHandler) SetContextInvalidator(invalidator ContextInvalidator) {
	h.invalidator = invalidator
}

func (h *ChatHandler) SetAnalytics(analytics SummaryReader) {
	h.analytics = analytics
}

// HandleChat runs one message through the routing pipeline.
func (h *ChatHandler) HandleChat(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.Handle(c.Request.Context(), userID, &req)
	if err != nil {
		writeChatError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func writeChatError(c *gin.Context, err error) {
	var denied *budget.AdmissionDenied
	if errors.As(err, &denied) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":  "admission_denied",
			"reason": denied.Message(),
			"kind":   denied.Kind,
		})
		return
	}

	if errors.Is(err, budget.ErrLedgerUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "usage_unavailable"})
		return
	}

	var dispatchErr *router.DispatchError
	if errors.As(err, &dispatchErr) {
		status := http.StatusBadGateway
		switch dispatchErr.Kind {
		case router.DispatchTimeout:
			status = http.StatusGatewayTimeout
		case router.DispatchQuotaExceeded:
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"error": "model_dispatch_failed",
			"kind":  dispatchErr.Kind,
			"model": dispatchErr.ModelID,
		})
		return
	}

	if errors.Is(err, chat.ErrEmptyMessage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger.Log.WithError(err).Error("Unexpected chat failure")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
}

// GetUsage reports the caller's current budget state and, when analytics are
// enabled, today's per-model breakdown.
func (h *ChatHandler) GetUsage(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	snapshot := h.usage.Usage(c.Request.Context(), userID)
	if h.analytics == nil {
		c.JSON(http.StatusOK, snapshot)
		return
	}

	since := snapshot.DayResetAt.Add(-24 * time.Hour)
	summaries, err := h.analytics.Summary(c.Request.Context(), userID, since)
	if err != nil {
		logger.ForUser(userID).WithError(err).Warn("Failed to read usage analytics")
	}

	breakdown := make([]gin.H, 0, len(summaries))
	for _, s := range summaries {
		breakdown = append(breakdown, gin.H{
			"model":        s.ModelID,
			"requests":     s.Requests,
			"inputTokens":  s.InputTokens,
			"outputTokens": s.OutputTokens,
			"cachedTokens": s.CachedTokens,
			"cost":         s.CostUSD,
			"failures":     s.Failures,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":           snapshot.UserID,
		"requestsInWindow": snapshot.RequestsInWindow,
		"tokensUsedToday":  snapshot.TokensUsedToday,
		"costUsedToday":    snapshot.CostUsedToday,
		"dayResetAt":       snapshot.DayResetAt,
		"models":           breakdown,
	})
}

// ClearHistory deletes the caller's conversation history
func (h *ChatHandler) ClearHistory(c *gin.Context) {
	userID := middleware.UserID(c)
	if h.history == nil || userID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "History is not enabled"})
		return
	}

	if err := h.history.Clear(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "History deleted successfully"})
}

type invalidateRequest struct {
	Tier string `json:"tier" binding:"required"`
}

// InvalidateContext forces a context tier to rebuild on the next request,
// e.g. after the user edits their profile.
func (h *ChatHandler) InvalidateContext(c *gin.Context) {
	userID := middleware.UserID(c)
	if h.invalidator == nil || userID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Context cache is not enabled"})
		return
	}

	var req invalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tier := models.CacheTier(req.Tier)
	if tier != models.TierStatic && tier != models.TierSlow && tier != models.TierDynamic {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown tier"})
		return
	}

	if err := h.invalidator.Invalidate(c.Request.Context(), userID, tier); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to invalidate context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Context invalidated", "tier": tier})
}
