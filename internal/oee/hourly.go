package oee

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"line-status-backend/internal/ledger"
	"line-status-backend/internal/shift"
)

// Bucket is the production of one clock hour.
type Bucket struct {
	Hour  int    `json:"hour"`
	Label string `json:"label"`
	Units int    `json:"units"`
}

// Series is the hour-by-hour production of today for one line, or for every
// line when LineID is empty.
type Series struct {
	LineID  string   `json:"lineId,omitempty"`
	Date    string   `json:"date"`
	Buckets []Bucket `json:"buckets"`
	Total   int      `json:"total"`
}

// run is an interval flattened for bucketing; open intervals end at now.
type run struct {
	start, end time.Time
	minutes    int
	units      int
}

// HourlyProduction prorates today's intervals into the configured hour
// buckets. Open intervals count up to now.
func (a *Aggregator) HourlyProduction(ctx context.Context, lineID string, now time.Time) (Series, error) {
	dayStart := a.cal.DayStart(now)

	completed, open, err := a.intervalsSince(ctx, lineID, dayStart, now)
	if err != nil {
		return Series{}, err
	}

	runs := make([]run, 0, len(completed)+len(open))
	for _, iv := range completed {
		if iv.EndTime == nil {
			a.log.Warn("completed interval without end time", zap.String("interval_id", iv.ID), zap.String("line_id", iv.LineID))
			continue
		}
		runs = append(runs, run{start: iv.StartTime, end: *iv.EndTime, minutes: iv.DurationMinutes, units: iv.UnitsProduced})
	}
	for _, iv := range open {
		minutes := int(now.Sub(iv.StartTime) / time.Minute)
		runs = append(runs, run{start: iv.StartTime, end: now, minutes: minutes, units: ledger.UnitsProduced(iv.ProductionRate, minutes)})
	}

	sums := make([]float64, len(a.hours))
	for _, r := range runs {
		if r.minutes <= 0 {
			continue
		}
		for i, h := range a.hours {
			from := time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(), h, 0, 0, 0, a.cal.Location())
			overlap := shift.OverlapMinutes(r.start, r.end, from, from.Add(time.Hour))
			sums[i] += float64(r.units) * float64(overlap) / float64(r.minutes)
		}
	}

	series := Series{
		LineID:  lineID,
		Date:    dayStart.Format("2006-01-02"),
		Buckets: make([]Bucket, len(a.hours)),
	}
	for i, h := range a.hours {
		units := int(math.Round(sums[i]))
		series.Buckets[i] = Bucket{Hour: h, Label: fmt.Sprintf("%02d:00", h), Units: units}
		series.Total += units
	}
	return series, nil
}
