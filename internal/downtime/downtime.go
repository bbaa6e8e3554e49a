// Package downtime computes stopped-time credit for a line against the shift
// calendar. Only time spent in the stopped state counts; maintenance and issue
// time is not stopped time.
package downtime

import (
	"time"

	"line-status-backend/internal/model"
	"line-status-backend/internal/shift"
)

// NeedsShiftReset reports whether a shift started after the line's current-shift
// counter was last zeroed.
func NeedsShiftReset(cal *shift.Calendar, line model.Line, at time.Time) bool {
	if !cal.IsWithinAnyShift(at) {
		return false
	}
	return line.LastShiftReset.Before(cal.ShiftStart(at))
}

// NeedsDailyReset reports whether the line's daily counter still belongs to an
// earlier calendar day.
func NeedsDailyReset(cal *shift.Calendar, line model.Line, at time.Time) bool {
	return line.LastDailyReset.Before(cal.DayStart(at))
}

func dailyFloor(cal *shift.Calendar, line model.Line, at time.Time) time.Time {
	if NeedsDailyReset(cal, line, at) {
		return cal.DayStart(at)
	}
	return line.LastDailyReset
}

// shiftFloor is the earliest instant the current-shift counter may credit.
func shiftFloor(cal *shift.Calendar, line model.Line, at time.Time) time.Time {
	if NeedsShiftReset(cal, line, at) {
		return cal.ShiftStart(at)
	}
	return line.LastShiftReset
}

// Pending returns the minutes of the line's open stopped period that have not
// been credited yet, for the daily and the current-shift counter. Lines in any
// other state have nothing pending.
func Pending(cal *shift.Calendar, line model.Line, at time.Time) (today, currentShift int) {
	if line.Status != model.LineStopped {
		return 0, 0
	}
	todayFrom := latest(line.LastStatusChange, dailyFloor(cal, line, at))
	shiftFrom := latest(line.LastStatusChange, shiftFloor(cal, line, at))
	return cal.ShiftMinutes(todayFrom, at), cal.ShiftMinutes(shiftFrom, at)
}

// Effective returns the stopped-time counters as they read at the given
// instant: stored credit, pending lazy daily and shift resets, plus the open
// stopped period.
func Effective(cal *shift.Calendar, line model.Line, at time.Time) (today, currentShift int) {
	today = line.TotalStoppedTimeToday
	currentShift = line.TotalStoppedTimeCurrentShift
	if NeedsDailyReset(cal, line, at) {
		today = 0
	}
	if NeedsShiftReset(cal, line, at) {
		currentShift = 0
	}
	pendingToday, pendingShift := Pending(cal, line, at)
	return today + pendingToday, currentShift + pendingShift
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
