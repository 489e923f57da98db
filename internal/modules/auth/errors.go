package auth

import "errors"

var (
	// ErrThrottled means too many failed attempts; the message stays vague
	// on purpose.
	ErrThrottled = errors.New("尝试次数过多，请稍后再试")
	// ErrInvalidCredentials covers both unknown account and wrong password
	// with one message, to avoid account enumeration.
	ErrInvalidCredentials = errors.New("邮箱或密码不正确")
	// ErrRegistrationClosed means an owner already exists.
	ErrRegistrationClosed = errors.New("我已经有一个主人了哦")
)
