package activity

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"line-status-backend/internal/model"
)

// DBSource reads the issues and tasks tables shared with the issue and task
// subsystems.
type DBSource struct {
	db *gorm.DB
}

// NewDBSource creates a source over the given database.
func NewDBSource(db *gorm.DB) *DBSource {
	return &DBSource{db: db}
}

// Snapshot counts the open issues and in-progress tasks of a line.
func (s *DBSource) Snapshot(ctx context.Context, lineID string) (Snapshot, error) {
	db := s.db.WithContext(ctx)

	var openIssues int64
	if err := db.Model(&model.Issue{}).
		Where("line_id = ? AND status NOT IN ?", lineID, []string{model.IssueResolved, model.IssueClosed}).
		Count(&openIssues).Error; err != nil {
		return Snapshot{}, fmt.Errorf("failed to count open issues for line %s: %w", lineID, err)
	}

	var maintenance int64
	if err := db.Model(&model.Task{}).
		Where("line_id = ? AND status = ? AND type = ?", lineID, model.TaskInProgress, model.TaskTypeMaintenance).
		Count(&maintenance).Error; err != nil {
		return Snapshot{}, fmt.Errorf("failed to count maintenance tasks for line %s: %w", lineID, err)
	}

	var standard int64
	if err := db.Model(&model.Task{}).
		Where("line_id = ? AND status = ? AND type <> ?", lineID, model.TaskInProgress, model.TaskTypeMaintenance).
		Count(&standard).Error; err != nil {
		return Snapshot{}, fmt.Errorf("failed to count tasks for line %s: %w", lineID, err)
	}

	return Snapshot{
		HasOpenIssue:             openIssues > 0,
		HasActiveMaintenanceTask: maintenance > 0,
		HasActiveStandardTask:    standard > 0,
	}, nil
}
