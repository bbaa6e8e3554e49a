package shift

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"line-status-backend/config"
)

const minutesPerDay = 24 * 60

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

// ParseClock parses an "HH:mm" wall-clock time.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Shift is a named work shift. End before Start means the shift runs past midnight.
type Shift struct {
	Name  string
	Start Clock
	End   Clock
}

// Minutes returns the scheduled length of the shift.
func (s Shift) Minutes() int {
	if s.End > s.Start {
		return int(s.End - s.Start)
	}
	return minutesPerDay - int(s.Start) + int(s.End)
}

func (s Shift) overnight() bool { return s.End <= s.Start }

func (s Shift) contains(c Clock) bool {
	if s.overnight() {
		return c >= s.Start || c < s.End
	}
	return c >= s.Start && c < s.End
}

// Window is a same-day wall-clock range [Start, End).
type Window struct {
	Start Clock
	End   Clock
}

func (w Window) contains(c Clock) bool {
	return c >= w.Start && c < w.End
}

// Span is a concrete shift occurrence on a given day.
type Span struct {
	Name  string
	Start time.Time
	End   time.Time
}

// Calendar answers which shift is running at a given instant. It holds no
// mutable state and is safe for concurrent use.
type Calendar struct {
	shifts []Shift
	lunch  Window
	loc    *time.Location
}

// New builds a calendar from a shift list and a lunch window. A nil location
// means local time.
func New(shifts []Shift, lunch Window, loc *time.Location) (*Calendar, error) {
	if len(shifts) == 0 {
		return nil, errors.New("calendar needs at least one shift")
	}
	for _, s := range shifts {
		if s.Name == "" {
			return nil, errors.New("shift name is required")
		}
		if s.Start == s.End {
			return nil, fmt.Errorf("shift %q has zero length", s.Name)
		}
	}
	if lunch.End < lunch.Start {
		return nil, fmt.Errorf("lunch window %s-%s ends before it starts", lunch.Start, lunch.End)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{
		shifts: append([]Shift(nil), shifts...),
		lunch:  lunch,
		loc:    loc,
	}, nil
}

// FromConfig builds a calendar from the calendar section of the configuration.
func FromConfig(cfg *config.CalendarConfig) (*Calendar, error) {
	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	shifts := make([]Shift, 0, len(cfg.Shifts))
	for _, sc := range cfg.Shifts {
		start, err := ParseClock(sc.Start)
		if err != nil {
			return nil, fmt.Errorf("shift %q: %w", sc.Name, err)
		}
		end, err := ParseClock(sc.End)
		if err != nil {
			return nil, fmt.Errorf("shift %q: %w", sc.Name, err)
		}
		shifts = append(shifts, Shift{Name: sc.Name, Start: start, End: end})
	}

	var lunch Window
	if cfg.Lunch.Start != "" || cfg.Lunch.End != "" {
		start, err := ParseClock(cfg.Lunch.Start)
		if err != nil {
			return nil, fmt.Errorf("lunch: %w", err)
		}
		end, err := ParseClock(cfg.Lunch.End)
		if err != nil {
			return nil, fmt.Errorf("lunch: %w", err)
		}
		lunch = Window{Start: start, End: end}
	}

	return New(shifts, lunch, loc)
}

// Location returns the time zone used for wall-clock comparisons.
func (c *Calendar) Location() *time.Location { return c.loc }

// Shifts returns a copy of the configured shifts.
func (c *Calendar) Shifts() []Shift { return append([]Shift(nil), c.shifts...) }

func (c *Calendar) clock(t time.Time) Clock {
	lt := t.In(c.loc)
	return Clock(lt.Hour()*60 + lt.Minute())
}

// DayStart returns local midnight of the day containing t.
func (c *Calendar) DayStart(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

func (c *Calendar) at(day time.Time, clock Clock) time.Time {
	y, m, d := day.In(c.loc).Date()
	return time.Date(y, m, d, int(clock)/60, int(clock)%60, 0, 0, c.loc)
}

// IsLunchBreak reports whether t falls inside the lunch window.
func (c *Calendar) IsLunchBreak(t time.Time) bool {
	return c.lunch.contains(c.clock(t))
}

// CurrentShift returns the shift running at t. The lunch window takes
// precedence over shift membership.
func (c *Calendar) CurrentShift(t time.Time) (Shift, bool) {
	if c.IsLunchBreak(t) {
		return Shift{}, false
	}
	clock := c.clock(t)
	for _, s := range c.shifts {
		if s.contains(clock) {
			return s, true
		}
	}
	return Shift{}, false
}

// IsWithinAnyShift reports whether production is allowed at t.
func (c *Calendar) IsWithinAnyShift(t time.Time) bool {
	_, ok := c.CurrentShift(t)
	return ok
}

// ShiftStart returns the instant the current shift started. When no shift is
// running it returns t unchanged.
func (c *Calendar) ShiftStart(t time.Time) time.Time {
	s, ok := c.CurrentShift(t)
	if !ok {
		return t
	}
	start := c.at(c.DayStart(t), s.Start)
	if s.overnight() && c.clock(t) < s.End {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// Spans lists every shift occurrence that overlaps [from, to).
func (c *Calendar) Spans(from, to time.Time) []Span {
	if !to.After(from) {
		return nil
	}
	var spans []Span
	// Start one day early so an overnight shift begun yesterday is included.
	for day := c.DayStart(from).AddDate(0, 0, -1); day.Before(to); day = day.AddDate(0, 0, 1) {
		for _, s := range c.shifts {
			start := c.at(day, s.Start)
			end := c.at(day, s.End)
			if s.overnight() {
				end = c.at(day.AddDate(0, 0, 1), s.End)
			}
			if end.After(from) && start.Before(to) {
				spans = append(spans, Span{Name: s.Name, Start: start, End: end})
			}
		}
	}
	return spans
}

// ShiftMinutes returns how many minutes of [from, to) fall inside shift spans.
func (c *Calendar) ShiftMinutes(from, to time.Time) int {
	total := 0
	for _, span := range c.Spans(from, to) {
		total += OverlapMinutes(from, to, span.Start, span.End)
	}
	return total
}

// ProductionHours returns the clock hours touched by any shift, in order.
// Hours entirely inside the lunch window are left out.
func (c *Calendar) ProductionHours() []int {
	set := make(map[int]bool)
	for _, s := range c.shifts {
		for off := 0; off < s.Minutes(); off += 60 {
			h := ((int(s.Start) + off) % minutesPerDay) / 60
			if Clock(h*60) >= c.lunch.Start && Clock((h+1)*60) <= c.lunch.End {
				continue
			}
			set[h] = true
		}
	}
	hours := make([]int, 0, len(set))
	for h := range set {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	return hours
}

// OverlapMinutes clamps [start, end) to [windowStart, windowEnd) and returns
// the whole minutes of the overlap, never negative.
func OverlapMinutes(start, end, windowStart, windowEnd time.Time) int {
	if windowStart.After(start) {
		start = windowStart
	}
	if windowEnd.Before(end) {
		end = windowEnd
	}
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}
