package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/oa-space/admin-core/internal/models"
	"github.com/oa-space/admin-core/internal/modules/auth/otp"
	"github.com/oa-space/admin-core/internal/modules/auth/session"
	"github.com/oa-space/admin-core/internal/modules/auth/throttle"
	"github.com/oa-space/admin-core/internal/modules/auth/token"
	"github.com/oa-space/admin-core/internal/pkg/mail"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Mailer delivers the OTP code out of band.
type Mailer interface {
	Send(msg mail.Message) error
}

// Service orchestrates the login flow: throttle gate, credential check, OTP
// challenge, token issuance and session persistence.
type Service struct {
	users    UserRepo
	throttle *throttle.Service
	otp      *otp.Service
	issuer   *token.Issuer
	sessions *session.Store
	mailer   Mailer
	logger   *zap.Logger
}

func NewService(
	users UserRepo,
	thr *throttle.Service,
	otpSvc *otp.Service,
	issuer *token.Issuer,
	sessions *session.Store,
	mailer Mailer,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:    users,
		throttle: thr,
		otp:      otpSvc,
		issuer:   issuer,
		sessions: sessions,
		mailer:   mailer,
		logger:   logger.Named("AuthService"),
	}
}

// Login verifies credentials behind the attempt throttle and, on success,
// issues an OTP challenge delivered by mail. No token is minted here.
func (s *Service) Login(ctx context.Context, email, password, origin string) error {
	if s.throttle.Blocked(ctx, email, origin) {
		return ErrThrottled
	}

	user, err := s.users.FindByMail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		s.throttle.RecordFailure(ctx, email, origin)
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		s.throttle.RecordFailure(ctx, email, origin)
		return ErrInvalidCredentials
	}

	s.throttle.ClearFailures(ctx, email, origin)

	code, err := s.otp.Generate(ctx, user.ID, models.OtpPurposeLogin)
	if err != nil {
		return err
	}

	body, err := mail.RenderOtpCode(user.Name, code)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(mail.Message{
		To:      []string{user.Mail},
		Subject: "登录验证码",
		HTML:    body,
	}); err != nil {
		// The challenge stays stored; the caller decides what to surface.
		return fmt.Errorf("发送验证码邮件失败: %w", err)
	}
	return nil
}

// VerifyOtp checks the submitted code and, on success, mints a token and
// persists it as the user's single active session, superseding any prior one.
func (s *Service) VerifyOtp(ctx context.Context, email, code, origin string, purpose models.OtpPurpose) (string, error) {
	user, err := s.users.FindByMail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", otp.ErrNotFound
	}

	if err := s.otp.Verify(ctx, user.ID, purpose, code); err != nil {
		return "", err
	}

	firstLogin := user.LastLoginTime == nil
	signed, err := s.issuer.Issue(ctx, user, firstLogin)
	if err != nil {
		return "", err
	}

	now := time.Now()
	sess := &models.UserSession{
		UserID:       user.ID,
		Token:        signed,
		ExpiresAt:    now.Add(s.issuer.TTL()),
		LastActiveAt: now,
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return "", err
	}

	if err := s.users.TouchLogin(ctx, user.ID, origin); err != nil {
		s.logger.Warn("更新最近登录信息失败", zap.String("user_id", user.ID), zap.Error(err))
	}
	return signed, nil
}

// Logout marks the caller's session as ended; it will be observed as invalid
// on the next request and swept later.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.sessions.MarkLoggedOut(ctx, userID)
}

// Session returns the caller's current stored session for introspection.
func (s *Service) Session(ctx context.Context, userID string) (*models.UserSession, error) {
	return s.sessions.Get(ctx, userID)
}

// Register creates the first account. Closed once any user exists.
func (s *Service) Register(ctx context.Context, dto *RegisterDTO) (*models.UserModel, error) {
	count, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrRegistrationClosed
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	name := dto.Name
	if name == "" {
		name = dto.Username
	}
	u := &models.UserModel{
		Username:          dto.Username,
		Name:              name,
		Mail:              dto.Mail,
		Password:          string(hash),
		AgreementAccepted: dto.AgreementAccepted,
	}
	return u, s.users.Create(ctx, u)
}
