package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"line-status-backend/internal/model"
)

// Ledger records production intervals. Write methods should be called on a
// ledger bound to the transaction that also updates the owning line.
type Ledger struct {
	db  *gorm.DB
	log *zap.Logger
}

// New creates a ledger on the given database handle.
func New(db *gorm.DB, log *zap.Logger) *Ledger {
	return &Ledger{db: db, log: log}
}

// WithTx returns a ledger that issues every statement through tx.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx, log: l.log}
}

// UnitsProduced is the output of a run at rate units/hour for the given minutes.
func UnitsProduced(rate, minutes int) int {
	if rate <= 0 || minutes <= 0 {
		return 0
	}
	return rate * minutes / 60
}

// Open starts a new interval for lineID. If the line already has an open
// interval nothing is written and (nil, nil) is returned.
func (l *Ledger) Open(ctx context.Context, lineID string, rate int, at time.Time) (*model.ProductionInterval, error) {
	existing, err := l.Active(ctx, lineID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		l.log.Warn("open interval already exists, skipping",
			zap.String("line_id", lineID),
			zap.String("interval_id", existing.ID),
			zap.Time("started", existing.StartTime))
		return nil, nil
	}

	interval := model.ProductionInterval{
		ID:             uuid.NewString(),
		LineID:         lineID,
		Status:         model.IntervalActive,
		StartTime:      at.UTC(),
		ProductionRate: rate,
	}
	if err := l.db.WithContext(ctx).Create(&interval).Error; err != nil {
		return nil, fmt.Errorf("failed to open interval for line %s: %w", lineID, err)
	}
	return &interval, nil
}

// Close completes the open interval of lineID at the given instant. If there
// is no open interval (nil, nil) is returned.
func (l *Ledger) Close(ctx context.Context, lineID string, at time.Time) (*model.ProductionInterval, error) {
	interval, err := l.Active(ctx, lineID)
	if err != nil {
		return nil, err
	}
	if interval == nil {
		l.log.Debug("no open interval to close", zap.String("line_id", lineID))
		return nil, nil
	}

	end := at.UTC()
	minutes := int(end.Sub(interval.StartTime) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	interval.EndTime = &end
	interval.DurationMinutes = minutes
	interval.UnitsProduced = UnitsProduced(interval.ProductionRate, minutes)
	interval.Status = model.IntervalCompleted

	if err := l.db.WithContext(ctx).Save(interval).Error; err != nil {
		return nil, fmt.Errorf("failed to close interval %s: %w", interval.ID, err)
	}
	return interval, nil
}

// Active returns the open interval of lineID, or nil when the line is idle.
func (l *Ledger) Active(ctx context.Context, lineID string) (*model.ProductionInterval, error) {
	var interval model.ProductionInterval
	err := l.db.WithContext(ctx).
		Where("line_id = ? AND status = ?", lineID, model.IntervalActive).
		First(&interval).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load open interval for line %s: %w", lineID, err)
	}
	return &interval, nil
}

// ActiveIntervals returns the open intervals of one line, or of every line
// when lineID is empty.
func (l *Ledger) ActiveIntervals(ctx context.Context, lineID string) ([]model.ProductionInterval, error) {
	q := l.db.WithContext(ctx).Where("status = ?", model.IntervalActive)
	if lineID != "" {
		q = q.Where("line_id = ?", lineID)
	}
	var intervals []model.ProductionInterval
	if err := q.Order("line_id").Find(&intervals).Error; err != nil {
		return nil, fmt.Errorf("failed to list open intervals: %w", err)
	}
	return intervals, nil
}

// Completed returns the completed intervals overlapping [from, to), for one
// line or for every line when lineID is empty, ordered by start time.
func (l *Ledger) Completed(ctx context.Context, lineID string, from, to time.Time) ([]model.ProductionInterval, error) {
	q := l.db.WithContext(ctx).
		Where("status = ?", model.IntervalCompleted).
		Where("start_time < ? AND end_time > ?", to.UTC(), from.UTC())
	if lineID != "" {
		q = q.Where("line_id = ?", lineID)
	}
	var intervals []model.ProductionInterval
	if err := q.Order("start_time").Find(&intervals).Error; err != nil {
		return nil, fmt.Errorf("failed to list completed intervals: %w", err)
	}
	return intervals, nil
}
