package store

import (
	"time"

	"github.com/rcliao/agent-pulse/internal/model"
)

// activityFields shapes an ActivityRecord.
func activityFields(action string, details map[string]any, now time.Time) map[string]any {
	if details == nil {
		details = map[string]any{}
	}
	return map[string]any{
		"action":    action,
		"details":   details,
		"timestamp": model.FormatTime(now),
	}
}
