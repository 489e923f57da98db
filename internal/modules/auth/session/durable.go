package session

import (
	"context"
	"errors"
	"time"

	"github.com/oa-space/admin-core/internal/models"
	"gorm.io/gorm"
)

type gormDurable struct {
	db *gorm.DB
}

// NewDurable returns the gorm-backed authoritative session tier. Deletes are
// unscoped: a soft-deleted row would keep holding the unique user_id index.
func NewDurable(db *gorm.DB) Durable {
	return &gormDurable{db: db}
}

func (d *gormDurable) Find(ctx context.Context, userID string) (*models.UserSession, error) {
	var sess models.UserSession
	err := d.db.WithContext(ctx).Where("user_id = ?", userID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (d *gormDurable) DeleteByUser(ctx context.Context, userID string) error {
	return d.db.WithContext(ctx).Unscoped().
		Where("user_id = ?", userID).
		Delete(&models.UserSession{}).Error
}

func (d *gormDurable) Insert(ctx context.Context, s *models.UserSession) error {
	return d.db.WithContext(ctx).Create(s).Error
}

func (d *gormDurable) Save(ctx context.Context, s *models.UserSession) error {
	return d.db.WithContext(ctx).Save(s).Error
}

func (d *gormDurable) DeleteFlagged(ctx context.Context) (int64, error) {
	res := d.db.WithContext(ctx).Unscoped().
		Where("logged_out = ? OR forced_logout = ?", true, true).
		Delete(&models.UserSession{})
	return res.RowsAffected, res.Error
}

func (d *gormDurable) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := d.db.WithContext(ctx).Unscoped().
		Where("logged_out = ? AND forced_logout = ? AND last_active_at < ?", false, false, cutoff).
		Delete(&models.UserSession{})
	return res.RowsAffected, res.Error
}
