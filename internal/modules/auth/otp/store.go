package otp

import (
	"context"
	"errors"

	"github.com/oa-space/admin-core/internal/models"
	"gorm.io/gorm"
)

type gormStore struct {
	db *gorm.DB
}

// NewStore returns the gorm-backed challenge store.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Latest(ctx context.Context, userID string, purpose models.OtpPurpose) (*models.OtpChallenge, error) {
	var ch models.OtpChallenge
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND purpose = ?", userID, purpose).
		Order("created_at DESC").
		First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *gormStore) Create(ctx context.Context, ch *models.OtpChallenge) error {
	return s.db.WithContext(ctx).Create(ch).Error
}

func (s *gormStore) Update(ctx context.Context, ch *models.OtpChallenge) error {
	return s.db.WithContext(ctx).Model(ch).
		Updates(map[string]interface{}{"attempts": ch.Attempts, "used": ch.Used}).Error
}
