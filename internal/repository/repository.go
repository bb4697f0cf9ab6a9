// Package repository persists participants, screening sessions and
// audiogram results. GormRepository targets PostgreSQL; SQLiteRepository
// serves single-node deployments and tests.
package repository

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a compare-and-swap update finds a
	// different version than expected.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate record")
)

// StaleBatchSize caps how many abandoned sessions one sweep picks up.
const StaleBatchSize = 100

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
