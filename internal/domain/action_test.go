package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name       string
		stats      ActionStats
		wantStatus string
		wantOK     bool
	}{
		{
			name:       "all success",
			stats:      ActionStats{SuccessCount: 3, TotalProcessed: 3},
			wantStatus: StatusCompleted,
			wantOK:     true,
		},
		{
			name:       "mixed success and failure",
			stats:      ActionStats{SuccessCount: 2, FailureCount: 1, TotalProcessed: 3},
			wantStatus: StatusPartiallyCompleted,
			wantOK:     true,
		},
		{
			name:       "only failures",
			stats:      ActionStats{FailureCount: 4, TotalProcessed: 4},
			wantStatus: StatusFailed,
			wantOK:     true,
		},
		{
			name:       "only skips",
			stats:      ActionStats{SkippedCount: 5, TotalProcessed: 5},
			wantStatus: StatusSkipped,
			wantOK:     true,
		},
		{
			name:       "success with skips still completed",
			stats:      ActionStats{SuccessCount: 1, SkippedCount: 2, TotalProcessed: 3},
			wantStatus: StatusCompleted,
			wantOK:     true,
		},
		{
			name:   "nothing counted",
			stats:  ActionStats{},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, ok := DeriveStatus(&tt.stats)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"scheduled to queued", StatusScheduled, StatusQueued, true},
		{"queued to in progress", StatusQueued, StatusInProgress, true},
		{"in progress to completed", StatusInProgress, StatusCompleted, true},
		{"in progress to failed", StatusInProgress, StatusFailed, true},
		{"in progress to skipped", StatusInProgress, StatusSkipped, true},
		{"skipped refines to completed", StatusSkipped, StatusCompleted, true},
		{"completed refines to partially completed", StatusCompleted, StatusPartiallyCompleted, true},
		{"failed refines to partially completed", StatusFailed, StatusPartiallyCompleted, true},
		{"completed never becomes failed", StatusCompleted, StatusFailed, false},
		{"failed never becomes completed", StatusFailed, StatusCompleted, false},
		{"no backward move", StatusInProgress, StatusQueued, false},
		{"same status is not a transition", StatusQueued, StatusQueued, false},
		{"partially completed is final", StatusPartiallyCompleted, StatusCompleted, false},
		{"unknown from", "BOGUS", StatusQueued, false},
		{"unknown to", StatusQueued, "BOGUS", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusesBelow(t *testing.T) {
	below := StatusesBelow(StatusInProgress)
	assert.ElementsMatch(t, []string{StatusScheduled, StatusQueued}, below)

	below = StatusesBelow(StatusPartiallyCompleted)
	assert.ElementsMatch(t, []string{
		StatusScheduled, StatusQueued, StatusInProgress,
		StatusSkipped, StatusCompleted, StatusFailed,
	}, below)

	assert.Nil(t, StatusesBelow("BOGUS"))
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(StatusScheduled))
	assert.False(t, IsTerminal(StatusQueued))
	assert.False(t, IsTerminal(StatusInProgress))
	assert.True(t, IsTerminal(StatusSkipped))
	assert.True(t, IsTerminal(StatusCompleted))
	assert.True(t, IsTerminal(StatusFailed))
	assert.True(t, IsTerminal(StatusPartiallyCompleted))
	assert.False(t, IsTerminal("BOGUS"))
}

func TestRecordEmail(t *testing.T) {
	assert.Equal(t, "a@example.com", Record{"email": "a@example.com"}.Email())
	assert.Equal(t, "", Record{"name": "no email"}.Email())
}
