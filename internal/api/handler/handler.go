package handler

import (
	"context"
	"log/slog"

	"github.com/tamnbq/bulkops-be/internal/domain"
	"github.com/tamnbq/bulkops-be/internal/store"
)

// ActionStore is the job-store surface the handlers need.
type ActionStore interface {
	CreateAction(ctx context.Context, action *domain.Action) error
	GetAction(ctx context.Context, actionID string) (*domain.Action, error)
	ListActions(ctx context.Context, filter store.ActionFilter) ([]domain.Action, error)
	GetStats(ctx context.Context, actionID string) (*domain.ActionStats, error)
	ListLogs(ctx context.Context, actionID string) ([]domain.LogEntry, error)
}

// Limiter gates submission per account.
type Limiter interface {
	Admit(ctx context.Context, accountID string, maxPerWindow int) (bool, error)
}

// Enqueuer publishes an action's batches to the work queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, action *domain.Action) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Store     ActionStore
	Limiter   Limiter
	Enqueuer  Enqueuer
	AllowList domain.AllowList

	// MaxActionsPerMinute is the per-account submission cap.
	MaxActionsPerMinute int
}

// ActionHandler handles bulk-action HTTP requests
type ActionHandler struct {
	logger       *slog.Logger
	store        ActionStore
	limiter      Limiter
	enqueuer     Enqueuer
	allowList    domain.AllowList
	maxPerMinute int
}

// NewActionHandler creates a new ActionHandler instance
func NewActionHandler(deps *Dependencies) *ActionHandler {
	allow := deps.AllowList
	if allow == nil {
		allow = domain.DefaultAllowList()
	}
	return &ActionHandler{
		logger:       deps.Logger,
		store:        deps.Store,
		limiter:      deps.Limiter,
		enqueuer:     deps.Enqueuer,
		allowList:    allow,
		maxPerMinute: deps.MaxActionsPerMinute,
	}
}
