package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/oa-space/admin-core/internal/models"
	"go.uber.org/zap"
)

const (
	challengeTTL   = 60 * time.Second
	regenCooldown  = 60 * time.Second
	maxAttempts    = 5
	codeUpperBound = 1000000
)

var (
	// ErrCooldown means the previous challenge is still within its cooldown.
	ErrCooldown = errors.New("验证码请求过于频繁")
	// ErrNotFound means no verifiable challenge exists for (user, purpose).
	ErrNotFound = errors.New("验证码不存在")
	// ErrLocked means attempts are exhausted and the challenge is burned.
	ErrLocked = errors.New("验证码错误次数过多，已失效")
	// ErrExpired means the challenge outlived its 60-second window.
	ErrExpired = errors.New("验证码已过期")
)

// MismatchError reports a wrong code and how many attempts remain.
type MismatchError struct {
	Remaining int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("验证码不正确，还可尝试 %d 次", e.Remaining)
}

// Store persists OTP challenges. Latest returns the most recent challenge
// for (user, purpose) regardless of state, or (nil, nil) when none exists.
type Store interface {
	Latest(ctx context.Context, userID string, purpose models.OtpPurpose) (*models.OtpChallenge, error)
	Create(ctx context.Context, ch *models.OtpChallenge) error
	Update(ctx context.Context, ch *models.OtpChallenge) error
}

// Service generates and verifies one-time codes. Only the sha256 hash of a
// code is ever stored.
type Service struct {
	store  Store
	logger *zap.Logger
}

func New(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger.Named("OtpService")}
}

// Generate creates a fresh 6-digit challenge for (user, purpose) and returns
// the plaintext code for out-of-band delivery. A prior unused challenge
// created within the cooldown window rejects regeneration; consumption lifts
// the cooldown early.
func (s *Service) Generate(ctx context.Context, userID string, purpose models.OtpPurpose) (string, error) {
	prev, err := s.store.Latest(ctx, userID, purpose)
	if err != nil {
		return "", err
	}
	if prev != nil && !prev.Used && time.Since(prev.CreatedAt) < regenCooldown {
		return "", ErrCooldown
	}

	code, err := randomCode()
	if err != nil {
		return "", err
	}

	ch := &models.OtpChallenge{
		UserID:    userID,
		Purpose:   purpose,
		CodeHash:  hashCode(code),
		ExpiresAt: time.Now().Add(challengeTTL),
	}
	if err := s.store.Create(ctx, ch); err != nil {
		return "", err
	}
	return code, nil
}

// Verify checks a submitted code against the most recent challenge.
// State machine: unused -> attempted* -> used by success, lockout or expiry.
// A used challenge is never updated again.
func (s *Service) Verify(ctx context.Context, userID string, purpose models.OtpPurpose, code string) error {
	ch, err := s.store.Latest(ctx, userID, purpose)
	if err != nil {
		return err
	}
	if ch == nil {
		return ErrNotFound
	}

	if ch.Used {
		if ch.Attempts >= maxAttempts {
			return ErrLocked
		}
		return ErrNotFound
	}

	if time.Now().After(ch.ExpiresAt) {
		ch.Used = true
		if err := s.store.Update(ctx, ch); err != nil {
			s.logger.Warn("标记过期验证码失败", zap.Error(err))
		}
		return ErrExpired
	}

	if subtle.ConstantTimeCompare([]byte(hashCode(code)), []byte(ch.CodeHash)) != 1 {
		ch.Attempts++
		if ch.Attempts >= maxAttempts {
			ch.Used = true
			if err := s.store.Update(ctx, ch); err != nil {
				return err
			}
			return ErrLocked
		}
		if err := s.store.Update(ctx, ch); err != nil {
			return err
		}
		return &MismatchError{Remaining: maxAttempts - ch.Attempts}
	}

	ch.Used = true
	return s.store.Update(ctx, ch)
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeUpperBound))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
