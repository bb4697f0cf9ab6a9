package repository

import (
	"context"
	"errors"
	"hearcheck-go/internal/models"
	"time"

	"gorm.io/gorm"
)

func (r *GormRepository) GetScreeningState(ctx context.Context, userID uint) (*models.ScreeningState, error) {
	var state models.ScreeningState
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveScreeningState writes state if the stored version still equals
// expected. An expected version of 0 inserts the first row for the user.
// On success state.Version holds the new version.
func (r *GormRepository) SaveScreeningState(ctx context.Context, state *models.ScreeningState, expected int) error {
	return saveState(r.db.WithContext(ctx), state, expected)
}

// CompleteScreeningState saves the finished state and records its audiogram
// in one transaction, so a completed session always has its result stored.
func (r *GormRepository) CompleteScreeningState(ctx context.Context, state *models.ScreeningState, expected int, result *models.AudiogramResult) error {
	saved := *state
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveState(tx, state, expected); err != nil {
			return err
		}
		return insertAudiogram(tx, result)
	})
	if err != nil {
		*state = saved
	}
	return err
}

func saveState(db *gorm.DB, state *models.ScreeningState, expected int) error {
	state.UpdatedAt = stamp(state.UpdatedAt)

	if expected == 0 {
		state.ID = 0
		state.Version = 1
		state.CreatedAt = state.UpdatedAt
		err := db.Omit("User").Create(state).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrVersionConflict
		}
		return err
	}

	res := db.Model(&models.ScreeningState{}).
		Where("user_id = ? AND version = ?", state.UserID, expected).
		Updates(map[string]interface{}{
			"run_id":      state.RunID,
			"version":     expected + 1,
			"is_complete": state.IsComplete,
			"state":       state.State,
			"updated_at":  state.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	state.Version = expected + 1
	return nil
}

// ListStaleStates returns unfinished sessions last touched before the cutoff,
// oldest first.
func (r *GormRepository) ListStaleStates(ctx context.Context, before time.Time) ([]models.ScreeningState, error) {
	var states []models.ScreeningState
	err := r.db.WithContext(ctx).
		Where("is_complete = ? AND updated_at < ?", false, before.UTC()).
		Order("updated_at ASC").
		Limit(StaleBatchSize).
		Find(&states).Error
	return states, err
}
