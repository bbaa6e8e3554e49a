package model

import "time"

// Issue and Task are owned by the issue and task subsystems. Only the columns
// needed to derive a line's status are mapped here.

// Issue is a reported problem on a line.
type Issue struct {
	ID        int64  `gorm:"primaryKey"`
	LineID    string `gorm:"size:64;index;not null"`
	Status    string `gorm:"size:32;not null"`
	Priority  string `gorm:"size:32"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Task is a unit of work scheduled on a line.
type Task struct {
	ID        int64  `gorm:"primaryKey"`
	LineID    string `gorm:"size:64;index;not null"`
	Status    string `gorm:"size:32;not null"`
	Type      string `gorm:"size:32;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	IssueResolved = "resolved"
	IssueClosed   = "closed"

	TaskInProgress      = "in_progress"
	TaskTypeMaintenance = "maintenance"
)
