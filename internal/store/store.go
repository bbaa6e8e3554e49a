package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"line-status-backend/internal/model"
)

// Store defines the persistence operations on line records.
type Store interface {
	Provision(ctx context.Context, lines []model.Line, now time.Time) error
	Get(ctx context.Context, lineID string) (model.Line, error)
	List(ctx context.Context) ([]model.Line, error)
	Mutate(ctx context.Context, lineID string, fn MutateFunc) error
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying handle for collaborators sharing the schema.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Provision inserts lines that are not yet known. Existing records keep their
// status and counters. New lines start stopped with every anchor set to now.
func (s *gormStore) Provision(ctx context.Context, lines []model.Line, now time.Time) error {
	if len(lines) == 0 {
		return nil
	}
	now = now.UTC()
	rows := make([]model.Line, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, model.Line{
			ID:               l.ID,
			Name:             l.Name,
			Status:           model.LineStopped,
			LastStatusChange: now,
			LastUpdated:      now,
			LastShiftReset:   now,
			LastDailyReset:   now,
		})
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to provision lines: %w", err)
	}
	return nil
}

// Get loads a single line.
func (s *gormStore) Get(ctx context.Context, lineID string) (model.Line, error) {
	var line model.Line
	if err := s.db.WithContext(ctx).First(&line, "id = ?", lineID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Line{}, ErrLineNotFound
		}
		return model.Line{}, fmt.Errorf("failed to load line %s: %w", lineID, err)
	}
	return line, nil
}

// List returns all lines ordered by ID.
func (s *gormStore) List(ctx context.Context) ([]model.Line, error) {
	var lines []model.Line
	if err := s.db.WithContext(ctx).Order("id").Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("failed to list lines: %w", err)
	}
	return lines, nil
}

// Mutate loads the line, applies fn and saves the line, all in one transaction.
func (s *gormStore) Mutate(ctx context.Context, lineID string, fn MutateFunc) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var line model.Line
		if err := tx.First(&line, "id = ?", lineID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLineNotFound
			}
			return fmt.Errorf("failed to load line %s: %w", lineID, err)
		}

		if err := fn(tx, &line); err != nil {
			return err
		}

		if err := tx.Save(&line).Error; err != nil {
			return fmt.Errorf("failed to save line %s: %w", lineID, err)
		}
		return nil
	})
}
