package token

import (
	"context"

	"gorm.io/gorm"
)

type gormResolver struct {
	db *gorm.DB
}

// NewResolver returns the gorm-backed role-to-permission-path resolver.
func NewResolver(db *gorm.DB) PermissionResolver {
	return &gormResolver{db: db}
}

func (r *gormResolver) ResolvePaths(ctx context.Context, roles []string) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	var paths []string
	err := r.db.WithContext(ctx).
		Table("permissions").
		Distinct("permissions.path").
		Joins("JOIN role_permissions rp ON rp.permission_model_id = permissions.id").
		Joins("JOIN roles ON roles.id = rp.role_model_id").
		Where("roles.name IN ?", roles).
		Pluck("permissions.path", &paths).Error
	return paths, err
}
