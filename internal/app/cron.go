package app

import (
	"context"
	"fmt"
	"time"

	"github.com/oa-space/admin-core/internal/config"
	"github.com/oa-space/admin-core/internal/modules/auth/session"
	pkgcron "github.com/oa-space/admin-core/internal/pkg/cron"
	"go.uber.org/zap"
)

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, sessions *session.Store, cfg *config.AppConfig, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")

	interval := cfg.Auth.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	sched.Register(pkgcron.Job{
		Name:        "sweep_sessions",
		Description: "清理已结束和长期闲置的会话",
		Interval:    interval,
		Fn: func(ctx context.Context) error {
			res, err := sessions.Sweep(ctx, cfg.Auth.SessionMaxIdle)
			if err != nil {
				cronLogger.Warn("会话清理失败", zap.Error(err))
				return err
			}
			cronLogger.Info(fmt.Sprintf("会话清理完成，已结束 %d 条，闲置 %d 条", res.Ended, res.Abandoned))
			return nil
		},
	})
}
