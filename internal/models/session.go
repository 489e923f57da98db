package models

import "time"

// UserSession is the single active login for a user. The unique index on
// UserID is the durable backstop for last-login-wins: two concurrent saves
// for the same user cannot both survive.
type UserSession struct {
	Base
	UserID       string    `json:"user_id"        gorm:"uniqueIndex;not null"`
	Token        string    `json:"-"              gorm:"type:text;not null"`
	ExpiresAt    time.Time `json:"expires_at"     gorm:"index;not null"`
	ConnectionID string    `json:"connection_id"`
	LastActiveAt time.Time `json:"last_active_at" gorm:"index"`
	LoggedOut    bool      `json:"logged_out"`
	ForcedLogout bool      `json:"forced_logout"`
}

func (UserSession) TableName() string { return "user_sessions" }
