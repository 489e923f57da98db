package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/oa-space/admin-core/internal/models"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "core:session:"

// ErrNotFound means the user has no stored session.
var ErrNotFound = errors.New("session not found")

// cacheRecord is the cache-tier serialization of a session. The model hides
// Token from JSON so it never leaks into HTTP responses; the gate needs the
// token back from a cache hit, so the cache uses its own record.
type cacheRecord struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	ConnectionID string    `json:"connection_id"`
	LastActiveAt time.Time `json:"last_active_at"`
	LoggedOut    bool      `json:"logged_out"`
	ForcedLogout bool      `json:"forced_logout"`
}

func toCacheRecord(s *models.UserSession) cacheRecord {
	return cacheRecord{
		ID:           s.ID,
		UserID:       s.UserID,
		Token:        s.Token,
		ExpiresAt:    s.ExpiresAt,
		ConnectionID: s.ConnectionID,
		LastActiveAt: s.LastActiveAt,
		LoggedOut:    s.LoggedOut,
		ForcedLogout: s.ForcedLogout,
	}
}

func (r cacheRecord) session() *models.UserSession {
	s := &models.UserSession{
		UserID:       r.UserID,
		Token:        r.Token,
		ExpiresAt:    r.ExpiresAt,
		ConnectionID: r.ConnectionID,
		LastActiveAt: r.LastActiveAt,
		LoggedOut:    r.LoggedOut,
		ForcedLogout: r.ForcedLogout,
	}
	s.ID = r.ID
	return s
}

// Durable is the authoritative session tier.
type Durable interface {
	Find(ctx context.Context, userID string) (*models.UserSession, error) // (nil, nil) when absent
	DeleteByUser(ctx context.Context, userID string) error
	Insert(ctx context.Context, s *models.UserSession) error
	Save(ctx context.Context, s *models.UserSession) error
	DeleteFlagged(ctx context.Context) (int64, error)
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cache is the fast TTL mirror. It may be empty or stale; the durable tier
// always wins on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Store is the dual-tier single-active-session store. Save enforces the
// one-session-per-user invariant with delete-then-insert under a per-user
// lock; the unique index on user_id backstops multi-instance races.
type Store struct {
	durable   Durable
	cache     Cache
	tokenTTL  time.Duration
	forcedTTL time.Duration
	logger    *zap.Logger

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewStore(durable Durable, cache Cache, tokenTTL, forcedTTL time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		durable:   durable,
		cache:     cache,
		tokenTTL:  tokenTTL,
		forcedTTL: forcedTTL,
		logger:    logger.Named("SessionStore"),
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *Store) userLock(userID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if mu, ok := s.locks[userID]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	s.locks[userID] = mu
	return mu
}

// Get reads the cache tier first and refills it from the durable tier on a
// miss. Returns ErrNotFound when neither tier has a record.
func (s *Store) Get(ctx context.Context, userID string) (*models.UserSession, error) {
	key := cacheKeyPrefix + userID

	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("session cache read failed", zap.Error(err))
	} else if raw != "" {
		var cached cacheRecord
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached.session(), nil
		}
		s.logger.Warn("session cache entry corrupt, falling back to durable tier", zap.String("user_id", userID))
	}

	sess, err := s.durable.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	s.writeCache(ctx, sess, s.tokenTTL)
	return sess, nil
}

// Save supersedes any prior session for the user: delete the durable record
// first, insert the new one, then write through the cache.
func (s *Store) Save(ctx context.Context, sess *models.UserSession) error {
	mu := s.userLock(sess.UserID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.durable.DeleteByUser(ctx, sess.UserID); err != nil {
		return err
	}
	if err := s.durable.Insert(ctx, sess); err != nil {
		return err
	}
	s.writeCache(ctx, sess, s.tokenTTL)
	return nil
}

// Remove deletes the session from both tiers.
func (s *Store) Remove(ctx context.Context, userID string) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.durable.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	s.dropCache(ctx, userID)
	return nil
}

// UpdateConnection records the user's current push channel and touches the
// activity timestamp. Token and expiry are untouched.
func (s *Store) UpdateConnection(ctx context.Context, userID, connectionID string) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.durable.Find(ctx, userID)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrNotFound
	}
	sess.ConnectionID = connectionID
	sess.LastActiveAt = time.Now()
	if err := s.durable.Save(ctx, sess); err != nil {
		return err
	}
	s.writeCache(ctx, sess, s.tokenTTL)
	return nil
}

// MarkLoggedOut flags the session as ended by the user. The record survives
// only long enough to be observed as invalid and then swept.
func (s *Store) MarkLoggedOut(ctx context.Context, userID string) error {
	return s.markEnded(ctx, userID, false)
}

// MarkForcedLogout flags the session as ended by the server. Written through
// both tiers with the shorter forced-logout retention window.
func (s *Store) MarkForcedLogout(ctx context.Context, userID string) error {
	return s.markEnded(ctx, userID, true)
}

func (s *Store) markEnded(ctx context.Context, userID string, forced bool) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.durable.Find(ctx, userID)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrNotFound
	}
	sess.LoggedOut = true
	if forced {
		sess.ForcedLogout = true
	}
	sess.LastActiveAt = time.Now()
	if err := s.durable.Save(ctx, sess); err != nil {
		return err
	}
	s.writeCache(ctx, sess, s.forcedTTL)
	return nil
}

// SweepResult reports what one sweeper pass reclaimed.
type SweepResult struct {
	Ended     int64 // flagged logged_out / forced_logout
	Abandoned int64 // idle past the max age
}

// Sweep reclaims ended sessions and sessions idle longer than maxIdle.
func (s *Store) Sweep(ctx context.Context, maxIdle time.Duration) (SweepResult, error) {
	var res SweepResult

	ended, err := s.durable.DeleteFlagged(ctx)
	if err != nil {
		return res, err
	}
	res.Ended = ended

	abandoned, err := s.durable.DeleteIdleBefore(ctx, time.Now().Add(-maxIdle))
	if err != nil {
		return res, err
	}
	res.Abandoned = abandoned
	return res, nil
}

func (s *Store) writeCache(ctx context.Context, sess *models.UserSession, ttl time.Duration) {
	data, err := json.Marshal(toCacheRecord(sess))
	if err != nil {
		s.logger.Warn("session cache marshal failed", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, cacheKeyPrefix+sess.UserID, string(data), ttl); err != nil {
		s.logger.Warn("session cache write failed", zap.Error(err))
	}
}

func (s *Store) dropCache(ctx context.Context, userID string) {
	if err := s.cache.Del(ctx, cacheKeyPrefix+userID); err != nil {
		s.logger.Warn("session cache delete failed", zap.Error(err))
	}
}
