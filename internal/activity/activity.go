// Package activity reads the issue and task state that a line's status is
// derived from.
package activity

import (
	"context"
	"fmt"
	"time"

	"line-status-backend/config"
	"line-status-backend/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Snapshot is the collective state of a line's issues and tasks.
type Snapshot struct {
	HasOpenIssue             bool `json:"hasOpenIssue"`
	HasActiveMaintenanceTask bool `json:"hasActiveMaintenanceTask"`
	HasActiveStandardTask    bool `json:"hasActiveStandardTask"`
}

// DeriveStatus maps a snapshot to the status the line should be in. Open
// issues win over maintenance, maintenance wins over production.
func DeriveStatus(s Snapshot) model.LineStatus {
	switch {
	case s.HasOpenIssue:
		return model.LineIssue
	case s.HasActiveMaintenanceTask:
		return model.LineMaintenance
	case s.HasActiveStandardTask:
		return model.LineActive
	default:
		return model.LineStopped
	}
}

// Source provides the current snapshot of a line.
type Source interface {
	Snapshot(ctx context.Context, lineID string) (Snapshot, error)
}

// NewSource builds the source selected in the configuration. It returns nil
// for "none", in which case only pushed snapshots can drive a recompute.
func NewSource(cfg *config.ActivityConfig, db *gorm.DB, log *zap.Logger) (Source, error) {
	switch cfg.Source {
	case "", "none":
		return nil, nil
	case "database":
		return NewDBSource(db), nil
	case "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("activity source http requires base_url")
		}
		return NewHTTPSource(cfg.BaseURL, time.Duration(cfg.TimeoutSeconds)*time.Second, log), nil
	default:
		return nil, fmt.Errorf("unknown activity source %q", cfg.Source)
	}
}
