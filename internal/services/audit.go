package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pandeptwidyaop/app-chooser/internal/database"
	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

// AuditService records app operations and their outcome.
type AuditService struct {
	db *database.DB
}

// NewAuditService creates a new AuditService instance.
func NewAuditService(db *database.DB) *AuditService {
	return &AuditService{db: db}
}

// Record writes entry to the audit log and fills in its ID.
func (s *AuditService) Record(ctx context.Context, entry *models.AuditEntry) error {
	var detailsJSON string
	if entry.Details != nil {
		bytes, err := json.Marshal(entry.Details)
		if err == nil {
			detailsJSON = string(bytes)
		}
	}
	outcome := entry.Outcome
	if outcome == "" {
		outcome = "success"
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (robot, action, resource_type, resource_id, outcome, details)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.Robot, entry.Action, entry.ResourceType, entry.ResourceID, outcome, detailsJSON)
	if err != nil {
		return err
	}
	entry.ID, _ = result.LastInsertId()
	entry.Outcome = outcome
	return nil
}

// AuditFilter narrows GetLogs.
type AuditFilter struct {
	Action string
	Robot  string
	Limit  int
	Offset int
}

// GetLogs retrieves audit entries, newest first.
func (s *AuditService) GetLogs(ctx context.Context, f AuditFilter) ([]models.AuditEntry, error) {
	if f.Limit == 0 {
		f.Limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, robot, action, resource_type, resource_id, outcome, details, created_at
		FROM audit_logs
		WHERE (? = '' OR action = ?) AND (? = '' OR robot = ?)
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, f.Action, f.Action, f.Robot, f.Robot, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// Initialize empty slice instead of nil to return [] instead of null in JSON
	logs := make([]models.AuditEntry, 0)
	for rows.Next() {
		var (
			e                          models.AuditEntry
			robot, resourceID, details *string
			createdAt                  time.Time
		)
		if err := rows.Scan(&e.ID, &robot, &e.Action, &e.ResourceType, &resourceID, &e.Outcome, &details, &createdAt); err != nil {
			return nil, err
		}
		if robot != nil {
			e.Robot = *robot
		}
		if resourceID != nil {
			e.ResourceID = *resourceID
		}
		if details != nil && *details != "" {
			_ = json.Unmarshal([]byte(*details), &e.Details)
		}
		e.CreatedAt = createdAt
		logs = append(logs, e)
	}
	return logs, rows.Err()
}
