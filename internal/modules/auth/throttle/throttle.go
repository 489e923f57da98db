package throttle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	identityBlockThreshold = 5
	originAlertThreshold   = 10
	failureWindow          = 5 * time.Minute
	alertSuppressWindow    = 10 * time.Minute

	keyPrefix = "core:login_fail:"
	alertKey  = "core:login_alert:"
)

// Cache is the TTL key-value tier the counters live in. Counters are
// best-effort state; losing them only relaxes the throttle.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

// AlertFunc is invoked once per origin per suppression window when the
// per-origin failure counter crosses the alert threshold.
type AlertFunc func(origin string, count int64)

// Service tracks failed-login counters per (identity, origin) and per origin.
type Service struct {
	cache  Cache
	alert  AlertFunc
	logger *zap.Logger
}

func New(cache Cache, alert AlertFunc, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cache: cache, alert: alert, logger: logger.Named("ThrottleService")}
}

// Blocked reports whether the identity+origin pair has exhausted its failure
// budget. Called before the credential store is touched. Cache errors fail
// open: the throttle is advisory.
func (s *Service) Blocked(ctx context.Context, identity, origin string) bool {
	raw, err := s.cache.Get(ctx, identityKey(identity, origin))
	if err != nil {
		s.logger.Warn("读取登录失败计数失败", zap.Error(err))
		return false
	}
	if raw == "" {
		return false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return false
	}
	return n >= identityBlockThreshold
}

// RecordFailure increments both counters and fires the one-shot origin alert
// when the origin counter crosses threshold. The 5-minute expiry is armed on
// the first increment only, so the counter lives in a fixed window.
func (s *Service) RecordFailure(ctx context.Context, identity, origin string) {
	n, err := s.cache.Incr(ctx, identityKey(identity, origin))
	if err != nil {
		s.logger.Warn("登录失败计数写入失败", zap.Error(err))
	} else if n == 1 {
		_ = s.cache.Expire(ctx, identityKey(identity, origin), failureWindow)
	}

	on, err := s.cache.Incr(ctx, originKey(origin))
	if err != nil {
		s.logger.Warn("来源失败计数写入失败", zap.Error(err))
		return
	}
	if on == 1 {
		_ = s.cache.Expire(ctx, originKey(origin), failureWindow)
	}

	if on >= originAlertThreshold && s.alert != nil {
		fresh, err := s.cache.SetNX(ctx, alertKey+origin, "1", alertSuppressWindow)
		if err != nil {
			s.logger.Warn("告警抑制标记写入失败", zap.Error(err))
			return
		}
		if fresh {
			count := on
			go s.alert(origin, count)
		}
	}
}

// ClearFailures resets the identity+origin counter after a successful
// credential check. The origin-only counter keeps tracking broader abuse.
func (s *Service) ClearFailures(ctx context.Context, identity, origin string) {
	if err := s.cache.Del(ctx, identityKey(identity, origin)); err != nil {
		s.logger.Warn("清除登录失败计数失败", zap.Error(err))
	}
}

func identityKey(identity, origin string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, identity, origin)
}

func originKey(origin string) string {
	return keyPrefix + "origin:" + origin
}
