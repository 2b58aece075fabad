package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tamnbq/bulkops-be/internal/api/dto"
	"github.com/tamnbq/bulkops-be/internal/domain"
	"github.com/tamnbq/bulkops-be/internal/store"
)

// CreateBulkAction handles POST /api/v1/bulk-actions
// Validates the request, admits it against the per-account rate limit, and
// either enqueues immediately or parks the action as SCHEDULED.
func (h *ActionHandler) CreateBulkAction(c *gin.Context) {
	var req dto.CreateBulkActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if !h.allowList.Known(req.EntityType) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown entity_type",
		})
		return
	}

	actionType := req.ActionType
	if actionType == "" {
		actionType = domain.ActionTypeUpdate
	}
	if actionType != domain.ActionTypeUpdate {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unsupported action_type",
		})
		return
	}

	// Reject up front when none of the requested fields are writable; a
	// worker would only fail every record later.
	if len(h.allowList.Filter(req.EntityType, req.FieldsToUpdate)) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "no updatable fields for entity_type",
		})
		return
	}

	allowed, err := h.limiter.Admit(c.Request.Context(), req.AccountID, h.maxPerMinute)
	if err != nil {
		h.logger.Error("Rate limit check failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create bulk action",
		})
		return
	}
	if !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "rate limit exceeded for account",
		})
		return
	}

	status := domain.StatusQueued
	if req.ScheduledAt != nil {
		status = domain.StatusScheduled
	}

	now := time.Now().UTC()
	action := domain.Action{
		ActionID:       uuid.New().String(),
		AccountID:      req.AccountID,
		FileURL:        req.FileURL,
		EntityType:     req.EntityType,
		ActionType:     actionType,
		FieldsToUpdate: req.FieldsToUpdate,
		Status:         status,
		ScheduledAt:    req.ScheduledAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.store.CreateAction(c.Request.Context(), &action); err != nil {
		h.logger.Error("Failed to create bulk action", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create bulk action",
		})
		return
	}

	if status == domain.StatusQueued {
		if err := h.enqueuer.Enqueue(c.Request.Context(), &action); err != nil {
			h.logger.Error("Failed to enqueue bulk action",
				slog.String("action_id", action.ActionID),
				slog.String("error", err.Error()),
			)
			// The action row exists at QUEUED; surfacing the failure lets the
			// caller retry or an operator re-drive it.
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":     "Failed to enqueue bulk action",
				"action_id": action.ActionID,
			})
			return
		}
	}

	h.logger.Info("Bulk action created",
		slog.String("action_id", action.ActionID),
		slog.String("account_id", action.AccountID),
		slog.String("entity_type", action.EntityType),
		slog.String("status", status),
	)

	c.JSON(http.StatusCreated, toActionDTO(&action))
}

// GetBulkAction handles GET /api/v1/bulk-actions/:action_id
func (h *ActionHandler) GetBulkAction(c *gin.Context) {
	actionID, ok := h.actionIDParam(c)
	if !ok {
		return
	}

	action, err := h.store.GetAction(c.Request.Context(), actionID)
	if err != nil {
		if errors.Is(err, domain.ErrActionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "bulk action not found",
			})
			return
		}
		h.logger.Error("Failed to get bulk action", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get bulk action",
		})
		return
	}

	c.JSON(http.StatusOK, toActionDTO(action))
}

// ListBulkActions handles GET /api/v1/bulk-actions
// Lists actions with optional filtering and keyset pagination
func (h *ActionHandler) ListBulkActions(c *gin.Context) {
	var req dto.ListBulkActionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeActionCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	actions, err := h.store.ListActions(c.Request.Context(), store.ActionFilter{
		AccountID:  req.AccountID,
		Status:     req.Status,
		EntityType: req.EntityType,
		PageSize:   req.PageSize,
		Cursor:     cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list bulk actions", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list bulk actions",
		})
		return
	}

	hasMore := len(actions) > req.PageSize
	if hasMore {
		actions = actions[:req.PageSize]
	}

	response := make([]dto.BulkActionDTO, len(actions))
	for i := range actions {
		response[i] = toActionDTO(&actions[i])
	}

	var nextCursor string
	if hasMore {
		last := actions[len(actions)-1]
		nextCursor = EncodeActionCursor(&store.ActionCursor{
			CreatedAt: last.CreatedAt,
			ActionID:  last.ActionID,
		})
	}

	c.JSON(http.StatusOK, dto.ListBulkActionsResponse{
		Actions:    response,
		NextCursor: nextCursor,
	})
}

// GetBulkActionStats handles GET /api/v1/bulk-actions/:action_id/stats
func (h *ActionHandler) GetBulkActionStats(c *gin.Context) {
	actionID, ok := h.actionIDParam(c)
	if !ok {
		return
	}

	stats, err := h.store.GetStats(c.Request.Context(), actionID)
	if err != nil {
		if errors.Is(err, domain.ErrActionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "bulk action not found",
			})
			return
		}
		h.logger.Error("Failed to get bulk action stats", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get bulk action stats",
		})
		return
	}

	c.JSON(http.StatusOK, dto.ActionStatsDTO{
		ActionID:       stats.ActionID,
		SuccessCount:   stats.SuccessCount,
		FailureCount:   stats.FailureCount,
		SkippedCount:   stats.SkippedCount,
		TotalProcessed: stats.TotalProcessed,
		UpdatedAt:      stats.UpdatedAt.Format(time.RFC3339),
	})
}

// GetBulkActionLogs handles GET /api/v1/bulk-actions/:action_id/logs
func (h *ActionHandler) GetBulkActionLogs(c *gin.Context) {
	actionID, ok := h.actionIDParam(c)
	if !ok {
		return
	}

	// 404 for unknown actions rather than an empty log list.
	if _, err := h.store.GetAction(c.Request.Context(), actionID); err != nil {
		if errors.Is(err, domain.ErrActionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "bulk action not found",
			})
			return
		}
		h.logger.Error("Failed to get bulk action", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get bulk action logs",
		})
		return
	}

	entries, err := h.store.ListLogs(c.Request.Context(), actionID)
	if err != nil {
		h.logger.Error("Failed to list bulk action logs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get bulk action logs",
		})
		return
	}

	logs := make([]dto.LogEntryDTO, len(entries))
	for i, entry := range entries {
		logs[i] = dto.LogEntryDTO{
			LogID:     entry.LogID,
			EventType: entry.EventType,
			Email:     entry.Email,
			Message:   entry.Message,
			Details:   entry.Details,
			CreatedAt: entry.CreatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, dto.ListLogsResponse{
		ActionID: actionID,
		Logs:     logs,
	})
}

func (h *ActionHandler) actionIDParam(c *gin.Context) (string, bool) {
	actionID := c.Param("action_id")
	if _, err := uuid.Parse(actionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "action_id must be a valid UUID",
		})
		return "", false
	}
	return actionID, true
}

func toActionDTO(action *domain.Action) dto.BulkActionDTO {
	var scheduledAt string
	if action.ScheduledAt != nil {
		scheduledAt = action.ScheduledAt.Format(time.RFC3339)
	}
	return dto.BulkActionDTO{
		ActionID:       action.ActionID,
		AccountID:      action.AccountID,
		FileURL:        action.FileURL,
		EntityType:     action.EntityType,
		ActionType:     action.ActionType,
		FieldsToUpdate: action.FieldsToUpdate,
		Status:         action.Status,
		ScheduledAt:    scheduledAt,
		CreatedAt:      action.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      action.UpdatedAt.Format(time.RFC3339),
	}
}
