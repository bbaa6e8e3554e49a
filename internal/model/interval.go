package model

import "time"

// IntervalStatus is the lifecycle state of a production interval.
type IntervalStatus string

const (
	IntervalActive    IntervalStatus = "active"
	IntervalCompleted IntervalStatus = "completed"
)

// ProductionInterval is one continuous production run of a line (ledger row).
// At most one row per line is active at any time.
type ProductionInterval struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	LineID          string         `gorm:"size:64;not null;uniqueIndex:idx_interval_line_start;index:idx_interval_line_status" json:"lineId"`
	Status          IntervalStatus `gorm:"size:16;not null;index:idx_interval_line_status" json:"status"`
	StartTime       time.Time      `gorm:"not null;uniqueIndex:idx_interval_line_start" json:"startTime"`
	EndTime         *time.Time     `json:"endTime,omitempty"`
	DurationMinutes int            `gorm:"not null;default:0" json:"durationMinutes"`
	ProductionRate  int            `gorm:"not null" json:"productionRate"` // units per hour
	UnitsProduced   int            `gorm:"not null;default:0" json:"unitsProduced"`
}
