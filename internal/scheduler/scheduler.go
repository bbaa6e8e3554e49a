// Package scheduler drives the periodic line jobs: shift-boundary enforcement
// on a fixed cadence, and the shift and daily counter resets when the clock
// crosses into a new shift or a new day.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"line-status-backend/config"
	"line-status-backend/internal/shift"
)

// Jobs are the controller operations run by the scheduler.
type Jobs interface {
	EnforceShiftBoundaries(ctx context.Context, at time.Time) (int, error)
	ResetShift(ctx context.Context, at time.Time) (int, error)
	ResetDaily(ctx context.Context, at time.Time) (int, error)
}

// Service runs Tick on the configured interval.
type Service struct {
	cfg  *config.SchedulerConfig
	cal  *shift.Calendar
	jobs Jobs
	now  func() time.Time
	log  *zap.Logger

	mu         sync.Mutex
	primed     bool
	shiftStart time.Time
	day        time.Time
}

// NewService creates a scheduler.
func NewService(cfg *config.SchedulerConfig, cal *shift.Calendar, jobs Jobs, log *zap.Logger) *Service {
	return &Service{cfg: cfg, cal: cal, jobs: jobs, now: time.Now, log: log}
}

// Run ticks immediately and then on every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("scheduler is disabled, not starting")
		return
	}
	s.log.Info("starting scheduler", zap.Duration("interval", s.cfg.EnforceInterval))

	s.Tick(ctx, s.now())

	timer := time.NewTimer(s.cfg.EnforceInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler shutting down")
			return
		case <-timer.C:
			s.Tick(ctx, s.now())
			timer.Reset(s.cfg.EnforceInterval)
		}
	}
}

// Tick enforces shift boundaries and runs the resets that fall due at now.
// The first tick only records the current shift and day; missed resets are
// covered by the controller's lazy per-transition reset.
func (s *Service) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.jobs.EnforceShiftBoundaries(ctx, now); err != nil {
		s.log.Error("shift enforcement failed", zap.Error(err))
	}

	day := s.cal.DayStart(now)
	var shiftStart time.Time
	if s.cal.IsWithinAnyShift(now) {
		shiftStart = s.cal.ShiftStart(now)
	}

	if s.primed {
		if !shiftStart.IsZero() && !shiftStart.Equal(s.shiftStart) {
			if _, err := s.jobs.ResetShift(ctx, now); err != nil {
				s.log.Error("shift reset failed", zap.Error(err))
			}
		}
		if !day.Equal(s.day) {
			if _, err := s.jobs.ResetDaily(ctx, now); err != nil {
				s.log.Error("daily reset failed", zap.Error(err))
			}
		}
	}

	s.primed = true
	s.day = day
	if !shiftStart.IsZero() {
		s.shiftStart = shiftStart
	}
}
