package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oa-space/admin-core/internal/models"
	"gorm.io/gorm"
)

// UserRepo is the narrow slice of user storage the auth flow needs.
type UserRepo interface {
	FindByMail(ctx context.Context, mail string) (*models.UserModel, error) // (nil, nil) when absent
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, u *models.UserModel) error
	TouchLogin(ctx context.Context, userID, ip string) error
}

type gormUserRepo struct {
	db *gorm.DB
}

// NewUserRepo returns the gorm-backed user repository.
func NewUserRepo(db *gorm.DB) UserRepo {
	return &gormUserRepo{db: db}
}

func (r *gormUserRepo) FindByMail(ctx context.Context, mail string) (*models.UserModel, error) {
	var u models.UserModel
	err := r.db.WithContext(ctx).
		Preload("Roles").
		Where("mail = ?", mail).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormUserRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserModel{}).Count(&count).Error
	return count, err
}

func (r *gormUserRepo) Create(ctx context.Context, u *models.UserModel) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *gormUserRepo) TouchLogin(ctx context.Context, userID, ip string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.UserModel{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_login_time": &now,
			"last_login_ip":   ip,
		}).Error
}
