package store

import (
	"errors"

	"gorm.io/gorm"

	"line-status-backend/internal/model"
)

// ErrLineNotFound is returned when no line record exists for the given ID.
var ErrLineNotFound = errors.New("line not found")

// MutateFunc receives the loaded line and the open transaction. Returning an
// error rolls back the line and every write made through tx.
type MutateFunc func(tx *gorm.DB, line *model.Line) error
