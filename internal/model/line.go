package model

import "time"

// LineStatus is the operating state of a production line.
type LineStatus string

const (
	LineActive      LineStatus = "active"
	LineStopped     LineStatus = "stopped"
	LineMaintenance LineStatus = "maintenance"
	LineIssue       LineStatus = "issue"
)

// Valid reports whether s is one of the known line states.
func (s LineStatus) Valid() bool {
	switch s {
	case LineActive, LineStopped, LineMaintenance, LineIssue:
		return true
	}
	return false
}

// Line is the persisted status record of one physical production line.
// Stopped-time counters are in minutes.
type Line struct {
	ID                           string     `gorm:"primaryKey;size:64" json:"lineId"`
	Name                         string     `gorm:"size:128;not null" json:"name"`
	Status                       LineStatus `gorm:"size:16;not null" json:"status"`
	LastStatusChange             time.Time  `gorm:"not null" json:"lastStatusChange"`
	LastUpdated                  time.Time  `gorm:"not null" json:"lastUpdated"`
	TotalStoppedTimeToday        int        `gorm:"not null;default:0" json:"totalStoppedTimeToday"`
	TotalStoppedTimeCurrentShift int        `gorm:"not null;default:0" json:"totalStoppedTimeCurrentShift"`
	LastShiftReset               time.Time  `gorm:"not null" json:"lastShiftReset"`
	LastDailyReset               time.Time  `gorm:"not null" json:"lastDailyReset"`
	CreatedAt                    time.Time  `json:"-"`
	UpdatedAt                    time.Time  `json:"-"`
}

// StatusChange describes a committed transition. It is handed to notifiers
// after the line and ledger writes succeeded.
type StatusChange struct {
	LineID    string     `json:"lineId"`
	LineName  string     `json:"name"`
	Previous  LineStatus `json:"previous"`
	Requested LineStatus `json:"requested"`
	Status    LineStatus `json:"status"`
	Forced    bool       `json:"forced"`
	At        time.Time  `json:"at"`
}

// Changed reports whether the transition moved the line to a different state.
func (c StatusChange) Changed() bool {
	return c.Previous != c.Status
}
