package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/tamnbq/bulkops-be/internal/store"
)

// DecodeActionCursor parses an opaque list cursor. An empty cursor means the
// first page.
func DecodeActionCursor(cursorStr string) (*store.ActionCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &store.ActionCursor{
		CreatedAt: time.Unix(0, createdAt),
		ActionID:  parts[1],
	}, nil
}

// EncodeActionCursor renders a keyset position as an opaque cursor.
func EncodeActionCursor(cursor *store.ActionCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.ActionID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}
