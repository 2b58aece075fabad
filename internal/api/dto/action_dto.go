package dto

import "time"

type CreateBulkActionRequest struct {
	AccountID      string     `json:"account_id" binding:"required"`
	FileURL        string     `json:"file_url" binding:"required"`
	EntityType     string     `json:"entity_type" binding:"required"`
	ActionType     string     `json:"action_type"`
	FieldsToUpdate []string   `json:"fields_to_update" binding:"required"`
	ScheduledAt    *time.Time `json:"scheduled_at"`
}

type ListBulkActionsRequest struct {
	AccountID  string `form:"account_id"`
	Status     string `form:"status"`
	EntityType string `form:"entity_type"`
	PageSize   int    `form:"page_size"`
	Cursor     string `form:"cursor"`
}

type ListBulkActionsResponse struct {
	Actions    []BulkActionDTO `json:"actions"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type BulkActionDTO struct {
	ActionID       string   `json:"action_id"`
	AccountID      string   `json:"account_id"`
	FileURL        string   `json:"file_url"`
	EntityType     string   `json:"entity_type"`
	ActionType     string   `json:"action_type"`
	FieldsToUpdate []string `json:"fields_to_update"`
	Status         string   `json:"status"`
	ScheduledAt    string   `json:"scheduled_at,omitempty"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

type ActionStatsDTO struct {
	ActionID       string `json:"action_id"`
	SuccessCount   int64  `json:"success_count"`
	FailureCount   int64  `json:"failure_count"`
	SkippedCount   int64  `json:"skipped_count"`
	TotalProcessed int64  `json:"total_processed"`
	UpdatedAt      string `json:"updated_at"`
}

type LogEntryDTO struct {
	LogID     int64             `json:"log_id"`
	EventType string            `json:"event_type"`
	Email     string            `json:"email,omitempty"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	CreatedAt string            `json:"created_at"`
}

type ListLogsResponse struct {
	ActionID string        `json:"action_id"`
	Logs     []LogEntryDTO `json:"logs"`
}
