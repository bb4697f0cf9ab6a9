package repository

import (
	"context"
	"errors"
	"hearcheck-go/internal/models"

	"gorm.io/gorm"
)

// insertAudiogram records a finished run and copies its averages onto the
// user. It runs inside the caller's transaction.
func insertAudiogram(tx *gorm.DB, result *models.AudiogramResult) error {
	result.CreatedAt = stamp(result.CreatedAt)
	err := tx.Omit("User").Create(result).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	return tx.Model(&models.User{}).Where("id = ?", result.UserID).Updates(map[string]interface{}{
		"left_avg":      result.LeftAvg,
		"right_avg":     result.RightAvg,
		"dissimilarity": result.Dissimilarity,
		"updated_at":    result.CreatedAt,
	}).Error
}

func (r *GormRepository) GetLatestAudiogram(ctx context.Context, userID uint) (*models.AudiogramResult, error) {
	var result models.AudiogramResult
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListAudiograms returns up to limit runs of a user, oldest first.
func (r *GormRepository) ListAudiograms(ctx context.Context, userID uint, limit int) ([]models.AudiogramResult, error) {
	var results []models.AudiogramResult
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}
