package repository

import (
	"context"
	"errors"
	"hearcheck-go/internal/models"

	"gorm.io/gorm"
)

// GormRepository stores everything in PostgreSQL through GORM.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository wraps an open GORM connection.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *GormRepository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
