package models

import "time"

// AuditEntry is a recorded remote or local action and its outcome.
type AuditEntry struct {
	CreatedAt    time.Time              `json:"created_at"`
	Details      map[string]interface{} `json:"details,omitempty"`
	ID           int64                  `json:"id"`
	Robot        string                 `json:"robot"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Outcome      string                 `json:"outcome"`
}
