package oee

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"line-status-backend/config"
	"line-status-backend/internal/model"
	"line-status-backend/internal/shift"
)

type fakeLines struct {
	lines []model.Line
}

func (f *fakeLines) List(ctx context.Context) ([]model.Line, error) {
	return f.lines, nil
}

type fakeIntervals struct {
	completed []model.ProductionInterval
	open      []model.ProductionInterval
}

func (f *fakeIntervals) Completed(ctx context.Context, lineID string, from, to time.Time) ([]model.ProductionInterval, error) {
	var out []model.ProductionInterval
	for _, iv := range f.completed {
		if lineID != "" && iv.LineID != lineID {
			continue
		}
		if iv.EndTime != nil && !iv.EndTime.After(from) {
			continue
		}
		out = append(out, iv)
	}
	return out, nil
}

func (f *fakeIntervals) ActiveIntervals(ctx context.Context, lineID string) ([]model.ProductionInterval, error) {
	var out []model.ProductionInterval
	for _, iv := range f.open {
		if lineID == "" || iv.LineID == lineID {
			out = append(out, iv)
		}
	}
	return out, nil
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func timePtr(t time.Time) *time.Time { return &t }

func newTestAggregator(t *testing.T, lines []model.Line, intervals *fakeIntervals) *Aggregator {
	cal, err := shift.New([]shift.Shift{
		{Name: "morning", Start: 8 * 60, End: 12 * 60},
		{Name: "afternoon", Start: 13 * 60, End: 17 * 60},
	}, shift.Window{Start: 12 * 60, End: 13 * 60}, time.UTC)
	require.NoError(t, err)

	rates := NewRateTable([]config.LineConfig{
		{ID: "L1", RateMin: 500, RateMax: 700, TheoreticalRate: 1000},
		{ID: "L3", RateMin: 500, RateMax: 700, TheoreticalRate: 1000},
	})
	return NewAggregator(cal, &fakeLines{lines: lines}, intervals, rates, 240, nil, zap.NewNop())
}

func fixtureLines() []model.Line {
	return []model.Line{
		{ID: "L1", Name: "Line 1", Status: model.LineActive, LastStatusChange: at(9, 0), LastShiftReset: at(8, 0), LastDailyReset: at(0, 0)},
		{ID: "L2", Name: "Line 2", Status: "broken", LastShiftReset: at(8, 0)},
		{ID: "L3", Name: "Line 3", Status: model.LineStopped, LastStatusChange: at(9, 30), LastShiftReset: at(8, 0), LastDailyReset: at(0, 0)},
	}
}

func fixtureIntervals() *fakeIntervals {
	return &fakeIntervals{
		completed: []model.ProductionInterval{
			{ID: "c1", LineID: "L3", Status: model.IntervalCompleted, StartTime: at(8, 0), EndTime: timePtr(at(9, 30)), DurationMinutes: 90, ProductionRate: 600, UnitsProduced: 900},
		},
		open: []model.ProductionInterval{
			{ID: "o1", LineID: "L1", Status: model.IntervalActive, StartTime: at(9, 0), ProductionRate: 600},
		},
	}
}

func TestAggregator_OEE(t *testing.T) {
	agg := newTestAggregator(t, fixtureLines(), fixtureIntervals())

	report, err := agg.OEE(context.Background(), at(10, 0))
	require.NoError(t, err)

	require.Len(t, report.Lines, 2, "malformed line must be excluded")
	l1, l3 := report.Lines[0], report.Lines[1]

	assert.Equal(t, "L1", l1.LineID)
	assert.Equal(t, 600, l1.ActualOutput)
	assert.Equal(t, 4000, l1.TheoreticalOutput)
	assert.InDelta(t, 15.0, l1.OEEPercentage, 1e-9)
	assert.Equal(t, StatusCritical, l1.Status)

	assert.Equal(t, "L3", l3.LineID)
	assert.Equal(t, 210, l3.OperationalTime, "open stopped period counts as downtime")
	assert.Equal(t, 900, l3.ActualOutput)
	assert.Equal(t, 3500, l3.TheoreticalOutput)
	assert.InDelta(t, 22.5, l3.OEEPercentage, 1e-9)

	assert.Equal(t, 2, report.Overall.LineCount)
	assert.InDelta(t, 18.8, report.Overall.OEEPercentage, 0.051)
	assert.Equal(t, StatusCritical, report.Overall.Status)
}

func TestAggregator_OEEOutsideShift(t *testing.T) {
	agg := newTestAggregator(t, fixtureLines(), fixtureIntervals())

	report, err := agg.OEE(context.Background(), at(12, 30))
	require.NoError(t, err)
	for _, res := range report.Lines {
		assert.Zero(t, res.Availability)
		assert.Zero(t, res.Performance)
		assert.Zero(t, res.Quality)
		assert.Zero(t, res.OEE)
		assert.Equal(t, StatusCritical, res.Status)
	}
	assert.Zero(t, report.Overall.OEEPercentage)
}

func TestAggregator_TotalStoppedTime(t *testing.T) {
	agg := newTestAggregator(t, fixtureLines(), fixtureIntervals())

	st, err := agg.TotalStoppedTime(context.Background(), at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, StoppedTime{Today: 30, CurrentShift: 30, CurrentlyStoppedLineCount: 1, TotalLines: 3}, st)
}

func TestAggregator_HourlyProduction(t *testing.T) {
	intervals := &fakeIntervals{
		completed: []model.ProductionInterval{
			// Prorates evenly across the 08:00 and 09:00 buckets.
			{ID: "a", LineID: "L1", Status: model.IntervalCompleted, StartTime: at(8, 45), EndTime: timePtr(at(9, 15)), DurationMinutes: 30, ProductionRate: 120, UnitsProduced: 60},
			// Zero-length runs contribute nothing.
			{ID: "b", LineID: "L1", Status: model.IntervalCompleted, StartTime: at(9, 20), EndTime: timePtr(at(9, 20)), ProductionRate: 120},
			{ID: "c", LineID: "L3", Status: model.IntervalCompleted, StartTime: at(13, 0), EndTime: timePtr(at(13, 20)), DurationMinutes: 20, ProductionRate: 300, UnitsProduced: 100},
		},
		open: []model.ProductionInterval{
			{ID: "d", LineID: "L1", Status: model.IntervalActive, StartTime: at(13, 30), ProductionRate: 120},
		},
	}
	agg := newTestAggregator(t, fixtureLines(), intervals)
	ctx := context.Background()

	l1, err := agg.HourlyProduction(ctx, "L1", at(14, 0))
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", l1.Date)
	require.Len(t, l1.Buckets, 8)
	units := map[string]int{}
	for _, b := range l1.Buckets {
		units[b.Label] = b.Units
	}
	assert.Equal(t, 30, units["08:00"])
	assert.Equal(t, 30, units["09:00"])
	assert.Equal(t, 0, units["12:00"], "lunch hour has no bucket")
	assert.Equal(t, 60, units["13:00"], "open interval prorated up to now")
	assert.Equal(t, 120, l1.Total)

	combined, err := agg.HourlyProduction(ctx, "", at(14, 0))
	require.NoError(t, err)
	assert.Empty(t, combined.LineID)
	assert.Equal(t, 220, combined.Total)
}

func TestAggregator_OutputTodayProratesRunsFromYesterday(t *testing.T) {
	yesterday := func(hour, minute int) time.Time { return at(hour, minute).AddDate(0, 0, -1) }
	intervals := &fakeIntervals{
		completed: []model.ProductionInterval{
			// 22:00-02:00: half of the run falls after midnight.
			{ID: "n", LineID: "L1", Status: model.IntervalCompleted, StartTime: yesterday(22, 0), EndTime: timePtr(at(2, 0)), DurationMinutes: 240, ProductionRate: 100, UnitsProduced: 400},
		},
		open: []model.ProductionInterval{
			{ID: "o", LineID: "L3", Status: model.IntervalActive, StartTime: yesterday(23, 0), ProductionRate: 60},
		},
	}
	agg := newTestAggregator(t, fixtureLines(), intervals)

	output, err := agg.outputToday(context.Background(), at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, 200, output["L1"])
	assert.Equal(t, 600, output["L3"], "open run only counts since midnight")
}

type blockingLines struct{}

func (blockingLines) List(ctx context.Context) ([]model.Line, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type blockingIntervals struct{}

func (blockingIntervals) Completed(ctx context.Context, _ string, _, _ time.Time) ([]model.ProductionInterval, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingIntervals) ActiveIntervals(ctx context.Context, _ string) ([]model.ProductionInterval, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAggregator_QueriesAreBounded(t *testing.T) {
	cal, err := shift.New([]shift.Shift{{Name: "day", Start: 8 * 60, End: 17 * 60}}, shift.Window{}, time.UTC)
	require.NoError(t, err)
	agg := NewAggregator(cal, blockingLines{}, blockingIntervals{}, NewRateTable(nil), 240, nil, zap.NewNop(),
		WithQueryTimeout(20*time.Millisecond))
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := agg.OEE(ctx, at(10, 0))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		_, err = agg.TotalStoppedTime(ctx, at(10, 0))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		_, err = agg.HourlyProduction(ctx, "L1", at(10, 0))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("report queries did not time out")
	}
}
