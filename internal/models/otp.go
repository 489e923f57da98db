package models

import "time"

// OtpPurpose scopes a one-time code to the flow that requested it.
type OtpPurpose string

const (
	OtpPurposeLogin         OtpPurpose = "login"
	OtpPurposePasswordReset OtpPurpose = "password_reset"
)

// OtpChallenge stores a pending one-time code. Only the sha256 hash of the
// code is persisted; once Used is set the row is never updated again.
type OtpChallenge struct {
	Base
	UserID    string     `json:"user_id"    gorm:"index:idx_otp_user_purpose;not null"`
	Purpose   OtpPurpose `json:"purpose"    gorm:"index:idx_otp_user_purpose;not null"`
	CodeHash  string     `json:"-"          gorm:"not null"`
	Attempts  int        `json:"attempts"`
	Used      bool       `json:"used"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"index;not null"`
}

func (OtpChallenge) TableName() string { return "otp_challenges" }
