// Package status owns the line state machine. It is the only writer of a
// line's status, its stopped-time counters and its open production interval.
package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"line-status-backend/internal/activity"
	"line-status-backend/internal/downtime"
	"line-status-backend/internal/ledger"
	"line-status-backend/internal/model"
	"line-status-backend/internal/shift"
	"line-status-backend/internal/store"
)

var (
	// ErrInvalidStatus is returned for a requested status outside the known set.
	ErrInvalidStatus = errors.New("invalid line status")
	// ErrNoActivitySource is returned by RecomputeFromActivity when no
	// activity source is configured.
	ErrNoActivitySource = errors.New("no activity source configured")

	errSkipped = errors.New("transition skipped")
)

const defaultStoreTimeout = 5 * time.Second

// Notifier is told about every committed status change.
type Notifier interface {
	LineStatusChanged(ctx context.Context, change model.StatusChange)
}

// RateSource draws the production rate of a new interval.
type RateSource interface {
	Draw(lineID string) int
}

// Option configures a Controller.
type Option func(*Controller)

// WithActivitySource sets where RecomputeFromActivity reads snapshots from.
func WithActivitySource(src activity.Source) Option {
	return func(c *Controller) { c.activity = src }
}

// WithNotifiers registers notifiers called after each committed change.
func WithNotifiers(n ...Notifier) Option {
	return func(c *Controller) { c.notifiers = append(c.notifiers, n...) }
}

// WithStoreTimeout bounds every store round trip.
func WithStoreTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Controller applies status transitions one line at a time.
type Controller struct {
	cal       *shift.Calendar
	store     store.Store
	ledger    *ledger.Ledger
	rates     RateSource
	activity  activity.Source
	notifiers []Notifier
	locks     *lineLocks
	timeout   time.Duration
	log       *zap.Logger
}

// New creates a controller.
func New(cal *shift.Calendar, st store.Store, led *ledger.Ledger, rates RateSource, log *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		cal:     cal,
		store:   st,
		ledger:  led,
		rates:   rates,
		locks:   newLineLocks(),
		timeout: defaultStoreTimeout,
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestStatus moves a line toward the requested status at the given instant.
// An unknown line is a logged no-op returning (nil, nil). On a store failure
// nothing is committed and the error is returned so the caller may retry.
func (c *Controller) RequestStatus(ctx context.Context, lineID string, requested model.LineStatus, at time.Time) (*model.Line, error) {
	if !requested.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, requested)
	}
	return c.apply(ctx, lineID, at, func(model.Line) (model.LineStatus, bool) {
		return requested, true
	})
}

// ApplyActivity derives the status from a pushed snapshot and requests it.
func (c *Controller) ApplyActivity(ctx context.Context, lineID string, snap activity.Snapshot, at time.Time) (*model.Line, error) {
	return c.RequestStatus(ctx, lineID, activity.DeriveStatus(snap), at)
}

// RecomputeFromActivity reads the line's snapshot from the configured source
// and requests the derived status.
func (c *Controller) RecomputeFromActivity(ctx context.Context, lineID string, at time.Time) (*model.Line, error) {
	if c.activity == nil {
		return nil, ErrNoActivitySource
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	snap, err := c.activity.Snapshot(fetchCtx, lineID)
	cancel()
	if err != nil {
		c.log.Error("failed to read line activity", zap.String("line_id", lineID), zap.Error(err))
		return nil, err
	}
	return c.ApplyActivity(ctx, lineID, snap, at)
}

// EnforceShiftBoundaries stops every active line when no shift is running at
// the given instant. It returns how many lines were stopped.
func (c *Controller) EnforceShiftBoundaries(ctx context.Context, at time.Time) (int, error) {
	if c.cal.IsWithinAnyShift(at) {
		return 0, nil
	}

	lines, err := c.list(ctx)
	if err != nil {
		return 0, err
	}

	stopped := 0
	var errs []error
	for _, l := range lines {
		if l.Status != model.LineActive {
			continue
		}
		// Requesting active outside a shift goes through the override, so the
		// change is recorded as forced. Lines that left active meanwhile are
		// skipped.
		line, err := c.apply(ctx, l.ID, at, func(cur model.Line) (model.LineStatus, bool) {
			return model.LineActive, cur.Status == model.LineActive
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if line != nil && line.Status == model.LineStopped {
			stopped++
		}
	}

	if stopped > 0 {
		c.log.Info("stopped lines outside shift", zap.Int("count", stopped), zap.Time("at", at))
	}
	return stopped, errors.Join(errs...)
}

// ResetShift zeroes the current-shift stopped counter of every line.
func (c *Controller) ResetShift(ctx context.Context, at time.Time) (int, error) {
	return c.resetAll(ctx, "shift", func(line *model.Line, at time.Time) {
		line.TotalStoppedTimeCurrentShift = 0
		line.LastShiftReset = at
	}, at)
}

// ResetDaily zeroes the daily stopped counter of every line.
func (c *Controller) ResetDaily(ctx context.Context, at time.Time) (int, error) {
	return c.resetAll(ctx, "daily", func(line *model.Line, at time.Time) {
		line.TotalStoppedTimeToday = 0
		line.LastDailyReset = at
	}, at)
}

// GetLine returns the stored record of a line.
func (c *Controller) GetLine(ctx context.Context, lineID string) (model.Line, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.store.Get(ctx, lineID)
}

// ListLines enforces shift boundaries at the given instant and then returns
// every line.
func (c *Controller) ListLines(ctx context.Context, at time.Time) ([]model.Line, error) {
	if _, err := c.EnforceShiftBoundaries(ctx, at); err != nil {
		c.log.Warn("shift enforcement before listing failed", zap.Error(err))
	}
	return c.list(ctx)
}

func (c *Controller) list(ctx context.Context) ([]model.Line, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.store.List(ctx)
}

func (c *Controller) resetAll(ctx context.Context, kind string, reset func(*model.Line, time.Time), at time.Time) (int, error) {
	at = at.UTC()
	lines, err := c.list(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	var errs []error
	for _, l := range lines {
		err := c.mutate(ctx, l.ID, func(_ *gorm.DB, line *model.Line) error {
			reset(line, at)
			line.LastUpdated = at
			return nil
		})
		switch {
		case errors.Is(err, store.ErrLineNotFound):
		case err != nil:
			c.log.Error("counter reset failed", zap.String("kind", kind), zap.String("line_id", l.ID), zap.Error(err))
			errs = append(errs, err)
		default:
			count++
		}
	}

	c.log.Info("stopped-time counters reset", zap.String("kind", kind), zap.Int("lines", count))
	return count, errors.Join(errs...)
}

// mutate runs fn on the line while holding its lock, bounded by the store
// timeout.
func (c *Controller) mutate(ctx context.Context, lineID string, fn store.MutateFunc) error {
	unlock := c.locks.lock(lineID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.store.Mutate(ctx, lineID, fn)
}

// apply runs one transition. pick returns the requested status for the
// freshly loaded line, or false to leave the line untouched.
func (c *Controller) apply(ctx context.Context, lineID string, at time.Time, pick func(model.Line) (model.LineStatus, bool)) (*model.Line, error) {
	at = at.UTC()

	var (
		result model.Line
		change model.StatusChange
	)
	err := c.mutate(ctx, lineID, func(tx *gorm.DB, line *model.Line) error {
		requested, ok := pick(*line)
		if !ok {
			return errSkipped
		}
		var err error
		change, err = c.transition(ctx, c.ledger.WithTx(tx), line, requested, at)
		if err != nil {
			return err
		}
		result = *line
		return nil
	})

	switch {
	case errors.Is(err, store.ErrLineNotFound):
		c.log.Warn("status request for unknown line", zap.String("line_id", lineID))
		return nil, nil
	case errors.Is(err, errSkipped):
		return nil, nil
	case err != nil:
		c.log.Error("status transition failed, nothing committed",
			zap.String("line_id", lineID),
			zap.Error(err))
		return nil, err
	}

	if change.Forced {
		c.log.Info("active request overridden outside shift",
			zap.String("line_id", lineID),
			zap.Time("at", at))
	}
	if change.Changed() {
		c.log.Info("line status changed",
			zap.String("line_id", lineID),
			zap.String("previous", string(change.Previous)),
			zap.String("status", string(change.Status)))
		c.notify(ctx, change)
	}
	return &result, nil
}

// transition applies the state machine to line in place and writes the
// ledger through led.
func (c *Controller) transition(ctx context.Context, led *ledger.Ledger, line *model.Line, requested model.LineStatus, at time.Time) (model.StatusChange, error) {
	previous := line.Status
	change := model.StatusChange{
		LineID:    line.ID,
		LineName:  line.Name,
		Previous:  previous,
		Requested: requested,
		Status:    requested,
		At:        at,
	}

	// Production is never allowed during lunch or between shifts.
	if requested == model.LineActive && (c.cal.IsLunchBreak(at) || !c.cal.IsWithinAnyShift(at)) {
		change.Status = model.LineStopped
		change.Forced = true
	}
	next := change.Status

	// Pending credit is measured before the lazy resets so the shift counter
	// still gets the part of the stopped period inside the new shift.
	today, current := downtime.Pending(c.cal, *line, at)

	if downtime.NeedsDailyReset(c.cal, *line, at) {
		c.log.Debug("lazy daily reset", zap.String("line_id", line.ID), zap.Time("last_reset", line.LastDailyReset))
		line.TotalStoppedTimeToday = 0
		line.LastDailyReset = at
	}
	if downtime.NeedsShiftReset(c.cal, *line, at) {
		c.log.Debug("lazy shift reset", zap.String("line_id", line.ID), zap.Time("last_reset", line.LastShiftReset))
		line.TotalStoppedTimeCurrentShift = 0
		line.LastShiftReset = at
	}

	// Only a stopped period is downtime. Maintenance and issue time never
	// accrue.
	line.TotalStoppedTimeToday += today
	line.TotalStoppedTimeCurrentShift += current

	if previous == model.LineActive && next != model.LineActive {
		if _, err := led.Close(ctx, line.ID, at); err != nil {
			return change, err
		}
	}
	if next == model.LineActive && previous != model.LineActive {
		if _, err := led.Open(ctx, line.ID, c.rates.Draw(line.ID), at); err != nil {
			return change, err
		}
	}

	line.Status = next
	line.LastStatusChange = at
	line.LastUpdated = at
	return change, nil
}

func (c *Controller) notify(ctx context.Context, change model.StatusChange) {
	ctx = context.WithoutCancel(ctx)
	for _, n := range c.notifiers {
		n.LineStatusChanged(ctx, change)
	}
}
