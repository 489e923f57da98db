package models

import "time"

// UserModel represents a system account.
type UserModel struct {
	Base
	Username          string      `json:"username"  gorm:"uniqueIndex;not null"`
	Name              string      `json:"name"`
	Avatar            string      `json:"avatar"`
	Password          string      `json:"-"         gorm:"not null"`
	Mail              string      `json:"mail"      gorm:"uniqueIndex;not null"`
	AgreementAccepted bool        `json:"agreement_accepted"`
	LastLoginTime     *time.Time  `json:"last_login_time"`
	LastLoginIP       string      `json:"last_login_ip"`
	Roles             []RoleModel `json:"roles,omitempty" gorm:"many2many:user_roles"`
}

func (UserModel) TableName() string { return "users" }

// RoleModel is a named role linking users to permissions.
type RoleModel struct {
	Base
	Name        string            `json:"name" gorm:"uniqueIndex;not null"`
	Permissions []PermissionModel `json:"permissions,omitempty" gorm:"many2many:role_permissions"`
}

func (RoleModel) TableName() string { return "roles" }

// PermissionModel is a single allowed route path granted through a role.
type PermissionModel struct {
	Base
	Path string `json:"path" gorm:"uniqueIndex;not null"`
	Name string `json:"name"`
}

func (PermissionModel) TableName() string { return "permissions" }
