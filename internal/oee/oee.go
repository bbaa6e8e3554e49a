package oee

import (
	"math"
)

// Status classifies an OEE value.
type Status string

const (
	StatusExcellent Status = "excellent"
	StatusGood      Status = "good"
	StatusCritical  Status = "critical"
)

// Classify maps an OEE ratio to its status band.
func Classify(oee float64) Status {
	switch pct := oee * 100; {
	case pct > 85:
		return StatusExcellent
	case pct >= 60:
		return StatusGood
	default:
		return StatusCritical
	}
}

// Input is everything needed to compute the OEE of one line.
type Input struct {
	PlannedMinutes  int
	StoppedMinutes  int
	ActualOutput    int
	TheoreticalRate int
	InShift         bool
}

// Result is the OEE breakdown of one line. Ratios are in [0,1] except
// Performance, which may exceed 1 when a line beats its theoretical rate.
type Result struct {
	LineID                 string  `json:"lineId"`
	Name                   string  `json:"name"`
	Availability           float64 `json:"availability"`
	Performance            float64 `json:"performance"`
	Quality                float64 `json:"quality"`
	OEE                    float64 `json:"oee"`
	AvailabilityPercentage float64 `json:"availabilityPercentage"`
	PerformancePercentage  float64 `json:"performancePercentage"`
	QualityPercentage      float64 `json:"qualityPercentage"`
	OEEPercentage          float64 `json:"oeePercentage"`
	PlannedTime            int     `json:"plannedTime"`
	OperationalTime        int     `json:"operationalTime"`
	ActualOutput           int     `json:"actualOutput"`
	TheoreticalOutput      int     `json:"theoreticalOutput"`
	GoodPieces             int     `json:"goodPieces"`
	Status                 Status  `json:"status"`
}

// Compute derives availability, performance, quality and OEE. Outside every
// shift all four are forced to zero.
func Compute(in Input) Result {
	operational := in.PlannedMinutes - in.StoppedMinutes
	if operational < 0 {
		operational = 0
	}
	theoretical := int(math.Floor(float64(operational) / 60 * float64(in.TheoreticalRate)))
	good := in.ActualOutput // no defect model

	res := Result{
		PlannedTime:       in.PlannedMinutes,
		OperationalTime:   operational,
		ActualOutput:      in.ActualOutput,
		TheoreticalOutput: theoretical,
		GoodPieces:        good,
		Status:            StatusCritical,
	}
	if !in.InShift {
		return res
	}

	if in.PlannedMinutes > 0 {
		res.Availability = float64(operational) / float64(in.PlannedMinutes)
	}
	if theoretical > 0 {
		res.Performance = float64(in.ActualOutput) / float64(theoretical)
	}
	if in.ActualOutput > 0 {
		res.Quality = float64(good) / float64(in.ActualOutput)
	}
	res.OEE = clamp(res.Availability*res.Performance*res.Quality, 0, 1)

	res.AvailabilityPercentage = percent(res.Availability)
	res.PerformancePercentage = percent(res.Performance)
	res.QualityPercentage = percent(res.Quality)
	res.OEEPercentage = percent(res.OEE)
	res.Status = Classify(res.OEE)
	return res
}

// percent converts a ratio to a percentage with one decimal.
func percent(ratio float64) float64 {
	return math.Round(ratio*1000) / 10
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
