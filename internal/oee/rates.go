package oee

import (
	"math/rand/v2"

	"line-status-backend/config"
)

// DefaultRate is the production rate, in units per hour, of lines missing
// from the rate table.
const DefaultRate = 1000

// RateRange is the configured production rate span of a line.
type RateRange struct {
	Min         int
	Max         int
	Theoretical int
}

// RateTable draws production rates for newly opened intervals.
type RateTable struct {
	ranges map[string]RateRange
	intN   func(n int) int
}

// NewRateTable builds the table from the configured lines.
func NewRateTable(lines []config.LineConfig) *RateTable {
	ranges := make(map[string]RateRange, len(lines))
	for _, l := range lines {
		r := RateRange{Min: l.RateMin, Max: l.RateMax, Theoretical: l.TheoreticalRate}
		if r.Max < r.Min {
			r.Min, r.Max = r.Max, r.Min
		}
		ranges[l.ID] = r
	}
	return &RateTable{ranges: ranges, intN: rand.IntN}
}

// Draw returns a fresh random rate within the line's range, or DefaultRate
// for unknown lines.
func (t *RateTable) Draw(lineID string) int {
	r, ok := t.ranges[lineID]
	if !ok || r.Max <= 0 {
		return DefaultRate
	}
	if r.Max == r.Min {
		return r.Min
	}
	return r.Min + t.intN(r.Max-r.Min+1)
}

// Theoretical returns the ideal rate of a line used for the performance ratio.
func (t *RateTable) Theoretical(lineID string) int {
	r, ok := t.ranges[lineID]
	switch {
	case !ok:
		return DefaultRate
	case r.Theoretical > 0:
		return r.Theoretical
	case r.Max > 0:
		return r.Max
	default:
		return DefaultRate
	}
}
