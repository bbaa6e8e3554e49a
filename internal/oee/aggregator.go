package oee

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"line-status-backend/internal/downtime"
	"line-status-backend/internal/ledger"
	"line-status-backend/internal/model"
	"line-status-backend/internal/shift"
)

// LineLister reads line records.
type LineLister interface {
	List(ctx context.Context) ([]model.Line, error)
}

// IntervalReader reads the production ledger.
type IntervalReader interface {
	Completed(ctx context.Context, lineID string, from, to time.Time) ([]model.ProductionInterval, error)
	ActiveIntervals(ctx context.Context, lineID string) ([]model.ProductionInterval, error)
}

// Report is the OEE of every line plus the plant-wide mean.
type Report struct {
	Lines       []Result  `json:"lines"`
	Overall     Overall   `json:"overall"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Overall is the mean OEE percentage across the reported lines.
type Overall struct {
	OEEPercentage float64 `json:"oeePercentage"`
	Status        Status  `json:"status"`
	LineCount     int     `json:"lineCount"`
}

// StoppedTime is the plant-wide downtime summary in minutes.
type StoppedTime struct {
	Today                     int `json:"today"`
	CurrentShift              int `json:"currentShift"`
	CurrentlyStoppedLineCount int `json:"currentlyStoppedLineCount"`
	TotalLines                int `json:"totalLines"`
}

// defaultQueryTimeout bounds each store query of a report.
const defaultQueryTimeout = 5 * time.Second

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithQueryTimeout bounds every store query made while building a report.
// Non-positive values keep the default.
func WithQueryTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// Aggregator computes read-only reports from line records and the ledger.
type Aggregator struct {
	cal            *shift.Calendar
	lines          LineLister
	intervals      IntervalReader
	rates          *RateTable
	plannedMinutes int
	hours          []int
	timeout        time.Duration
	log            *zap.Logger
}

// NewAggregator creates an aggregator. Empty hours fall back to the clock
// hours covered by the calendar's shifts.
func NewAggregator(cal *shift.Calendar, lines LineLister, intervals IntervalReader, rates *RateTable, plannedMinutes int, hours []int, log *zap.Logger, opts ...Option) *Aggregator {
	if len(hours) == 0 {
		hours = cal.ProductionHours()
	}
	a := &Aggregator{
		cal:            cal,
		lines:          lines,
		intervals:      intervals,
		rates:          rates,
		plannedMinutes: plannedMinutes,
		hours:          hours,
		timeout:        defaultQueryTimeout,
		log:            log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) listLines(ctx context.Context) ([]model.Line, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return a.lines.List(ctx)
}

// intervalsSince returns the completed intervals of lineID (every line when
// empty) overlapping [from, now) and the currently open ones.
func (a *Aggregator) intervalsSince(ctx context.Context, lineID string, from, now time.Time) (completed, open []model.ProductionInterval, err error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if completed, err = a.intervals.Completed(ctx, lineID, from, now); err != nil {
		return nil, nil, err
	}
	if open, err = a.intervals.ActiveIntervals(ctx, lineID); err != nil {
		return nil, nil, err
	}
	return completed, open, nil
}

// validate rejects line records that cannot take part in aggregates.
func validate(line model.Line) error {
	if !line.Status.Valid() {
		return fmt.Errorf("unknown status %q", line.Status)
	}
	if line.TotalStoppedTimeToday < 0 || line.TotalStoppedTimeCurrentShift < 0 {
		return fmt.Errorf("negative stopped time (%d today, %d shift)", line.TotalStoppedTimeToday, line.TotalStoppedTimeCurrentShift)
	}
	return nil
}

// OEE computes the per-line and overall OEE at now.
func (a *Aggregator) OEE(ctx context.Context, now time.Time) (Report, error) {
	lines, err := a.listLines(ctx)
	if err != nil {
		return Report{}, err
	}
	output, err := a.outputToday(ctx, now)
	if err != nil {
		return Report{}, err
	}

	inShift := a.cal.IsWithinAnyShift(now)
	report := Report{Lines: make([]Result, 0, len(lines)), GeneratedAt: now}
	sum := 0.0
	for _, line := range lines {
		if err := validate(line); err != nil {
			a.log.Warn("excluding line from OEE", zap.String("line_id", line.ID), zap.Error(err))
			continue
		}
		_, stopped := downtime.Effective(a.cal, line, now)
		res := Compute(Input{
			PlannedMinutes:  a.plannedMinutes,
			StoppedMinutes:  stopped,
			ActualOutput:    output[line.ID],
			TheoreticalRate: a.rates.Theoretical(line.ID),
			InShift:         inShift,
		})
		res.LineID = line.ID
		res.Name = line.Name
		report.Lines = append(report.Lines, res)
		sum += res.OEEPercentage
	}

	report.Overall.LineCount = len(report.Lines)
	if n := len(report.Lines); n > 0 {
		mean := clamp(sum/float64(n), 0, 100)
		report.Overall.OEEPercentage = math.Round(mean*10) / 10
	}
	report.Overall.Status = Classify(report.Overall.OEEPercentage / 100)
	return report, nil
}

// outputToday sums, per line, the units of today's completed intervals plus
// the prorated output of open intervals. Intervals begun before today only
// count their share after midnight.
func (a *Aggregator) outputToday(ctx context.Context, now time.Time) (map[string]int, error) {
	dayStart := a.cal.DayStart(now)
	completed, open, err := a.intervalsSince(ctx, "", dayStart, now)
	if err != nil {
		return nil, err
	}

	output := make(map[string]int)
	for _, iv := range completed {
		switch {
		case !iv.StartTime.Before(dayStart):
			output[iv.LineID] += iv.UnitsProduced
		case iv.EndTime != nil && iv.DurationMinutes > 0:
			overlap := shift.OverlapMinutes(iv.StartTime, *iv.EndTime, dayStart, now)
			output[iv.LineID] += int(math.Round(float64(iv.UnitsProduced) * float64(overlap) / float64(iv.DurationMinutes)))
		}
	}
	for _, iv := range open {
		from := iv.StartTime
		if from.Before(dayStart) {
			from = dayStart
		}
		output[iv.LineID] += ledger.UnitsProduced(iv.ProductionRate, int(now.Sub(from)/time.Minute))
	}
	return output, nil
}

// TotalStoppedTime sums the effective stopped-time counters of every line.
func (a *Aggregator) TotalStoppedTime(ctx context.Context, now time.Time) (StoppedTime, error) {
	lines, err := a.listLines(ctx)
	if err != nil {
		return StoppedTime{}, err
	}

	st := StoppedTime{TotalLines: len(lines)}
	for _, line := range lines {
		if err := validate(line); err != nil {
			a.log.Warn("excluding line from stopped time", zap.String("line_id", line.ID), zap.Error(err))
			continue
		}
		today, current := downtime.Effective(a.cal, line, now)
		st.Today += today
		st.CurrentShift += current
		if line.Status == model.LineStopped {
			st.CurrentlyStoppedLineCount++
		}
	}
	return st, nil
}
