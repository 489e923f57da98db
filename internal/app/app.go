package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/oa-space/admin-core/internal/config"
	"github.com/oa-space/admin-core/internal/database"
	"github.com/oa-space/admin-core/internal/middleware"
	"github.com/oa-space/admin-core/internal/modules/auth"
	"github.com/oa-space/admin-core/internal/modules/auth/otp"
	"github.com/oa-space/admin-core/internal/modules/auth/session"
	"github.com/oa-space/admin-core/internal/modules/auth/throttle"
	"github.com/oa-space/admin-core/internal/modules/auth/token"
	"github.com/oa-space/admin-core/internal/modules/gateway"
	"github.com/oa-space/admin-core/internal/pkg/bark"
	pkgcron "github.com/oa-space/admin-core/internal/pkg/cron"
	pkgjwt "github.com/oa-space/admin-core/internal/pkg/jwt"
	"github.com/oa-space/admin-core/internal/pkg/mail"
	pkgredis "github.com/oa-space/admin-core/internal/pkg/redis"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg      *config.AppConfig
	router   *gin.Engine
	db       *gorm.DB
	hub      *gateway.Hub
	sessions *session.Store
	logger   *zap.Logger
	cancel   context.CancelFunc
	sched    *pkgcron.Scheduler
}

// New initializes the application: config → DB → Redis → services → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	pkgjwt.SetSecret(cfg.JWTSecret)

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.Redis.URLValue())
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	mailer := mail.New(mail.Config{
		Enable:    cfg.Mail.Enable,
		Host:      cfg.Mail.Host,
		Port:      cfg.Mail.Port,
		User:      cfg.Mail.User,
		Pass:      cfg.Mail.Pass,
		From:      cfg.Mail.From,
		UseResend: cfg.Mail.UseResend,
		ResendKey: cfg.Mail.ResendKey,
	})
	barkSvc := bark.New(func() (key, serverURL, siteTitle string) {
		return cfg.Bark.Key, cfg.Bark.ServerURL, cfg.Bark.SiteTitle
	})

	sessions := session.NewStore(
		session.NewDurable(db), rc,
		cfg.Auth.TokenTTL, cfg.Auth.ForcedLogoutRetention,
		logger,
	)

	throttleSvc := throttle.New(rc, abuseAlert(cfg, mailer, barkSvc, logger), logger)
	otpSvc := otp.New(otp.NewStore(db), logger)
	issuer := token.NewIssuer(token.NewResolver(db), cfg.Auth.TokenTTL)
	authSvc := auth.NewService(auth.NewUserRepo(db), throttleSvc, otpSvc, issuer, sessions, mailer, logger)

	hub := gateway.NewHub(sessions, rc, logger, func(raw string) (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return middleware.ValidateToken(ctx, sessions, raw)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	sched := pkgcron.New()
	registerCronJobs(sched, sessions, cfg, logger)
	go sched.Start(ctx)

	app := &App{
		cfg:      cfg,
		router:   router,
		db:       db,
		hub:      hub,
		sessions: sessions,
		logger:   logger,
		cancel:   cancel,
		sched:    sched,
	}
	app.registerRoutes(authSvc, hub)
	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops the hub and the scheduler.
func (a *App) Shutdown() { a.cancel() }

// abuseAlert notifies the operator about a brute-force burst, by mail when an
// operator address is configured and by Bark push when a key is configured.
func abuseAlert(cfg *config.AppConfig, mailer *mail.Sender, barkSvc *bark.Service, logger *zap.Logger) throttle.AlertFunc {
	alertLogger := logger.Named("AbuseAlert")
	return func(origin string, count int64) {
		alertLogger.Warn("疑似遭到暴力破解", zap.String("origin", origin), zap.Int64("count", count))

		if cfg.Auth.OperatorMail != "" {
			body, err := mail.RenderAbuseAlert(origin, count)
			if err == nil {
				err = mailer.Send(mail.Message{
					To:      []string{cfg.Auth.OperatorMail},
					Subject: "登录异常告警",
					HTML:    body,
				})
			}
			if err != nil {
				alertLogger.Warn("发送告警邮件失败", zap.Error(err))
			}
		}
		barkSvc.AbusePush(origin, count)
	}
}
