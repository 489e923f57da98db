package session_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oa-space/admin-core/internal/models"
	"github.com/oa-space/admin-core/internal/modules/auth/session"
	"github.com/stretchr/testify/require"
)

// fakeDurable mimics the MySQL tier, including the unique index on user_id.
type fakeDurable struct {
	mu   sync.Mutex
	rows map[string]*models.UserSession
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{rows: make(map[string]*models.UserSession)}
}

func (f *fakeDurable) Find(_ context.Context, userID string) (*models.UserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[userID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeDurable) DeleteByUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, userID)
	return nil
}

func (f *fakeDurable) Insert(_ context.Context, s *models.UserSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[s.UserID]; ok {
		return fmt.Errorf("duplicate entry for user %s", s.UserID)
	}
	cp := *s
	f.rows[s.UserID] = &cp
	return nil
}

func (f *fakeDurable) Save(_ context.Context, s *models.UserSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.rows[s.UserID] = &cp
	return nil
}

func (f *fakeDurable) DeleteFlagged(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for uid, s := range f.rows {
		if s.LoggedOut || s.ForcedLogout {
			delete(f.rows, uid)
			n++
		}
	}
	return n, nil
}

func (f *fakeDurable) DeleteIdleBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for uid, s := range f.rows {
		if !s.LoggedOut && !s.ForcedLogout && s.LastActiveAt.Before(cutoff) {
			delete(f.rows, uid)
			n++
		}
	}
	return n, nil
}

func (f *fakeDurable) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeCache struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key], nil
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = fmt.Sprintf("%v", value)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeCache) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
		delete(f.ttls, k)
	}
	return nil
}

func (f *fakeCache) evict(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	delete(f.ttls, key)
}

func (f *fakeCache) ttlOf(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}

const (
	testTokenTTL  = time.Hour
	testForcedTTL = 10 * time.Minute
)

func newStore(durable *fakeDurable, cache *fakeCache) *session.Store {
	return session.NewStore(durable, cache, testTokenTTL, testForcedTTL, nil)
}

func newSession(userID, token string) *models.UserSession {
	s := &models.UserSession{
		UserID:       userID,
		Token:        token,
		ExpiresAt:    time.Now().Add(testTokenTTL),
		LastActiveAt: time.Now(),
	}
	s.ID = userID + "-" + token
	return s
}

func TestSaveLastLoginWins(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	store := newStore(durable, newFakeCache())

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Save(ctx, newSession("alice", fmt.Sprintf("token-%d", i))))
	}

	require.Equal(t, 1, durable.count())
	got, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "token-4", got.Token)
}

func TestSaveConcurrentSameUser(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	store := newStore(durable, newFakeCache())

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.Save(ctx, newSession("alice", fmt.Sprintf("token-%d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, durable.count())
}

func TestGetCacheHitKeepsToken(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	cache := newFakeCache()
	store := newStore(durable, cache)

	require.NoError(t, store.Save(ctx, newSession("alice", "tok")))

	// Drop the durable row so only the cache can answer; the cached record
	// must still carry the token the gate compares against.
	require.NoError(t, durable.DeleteByUser(ctx, "alice"))

	got, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "tok", got.Token)
	require.Equal(t, "alice", got.UserID)
}

func TestGetRefillsCacheOnMiss(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	cache := newFakeCache()
	store := newStore(durable, cache)

	require.NoError(t, store.Save(ctx, newSession("alice", "tok")))

	cache.evict("core:session:alice")

	got, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "tok", got.Token)
	// Refilled with TTL equal to the token lifetime.
	require.Equal(t, testTokenTTL, cache.ttlOf("core:session:alice"))
}

func TestGetNotFound(t *testing.T) {
	store := newStore(newFakeDurable(), newFakeCache())
	_, err := store.Get(context.Background(), "ghost")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestUpdateConnectionKeepsToken(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	store := newStore(durable, newFakeCache())

	sess := newSession("alice", "tok")
	expiry := sess.ExpiresAt
	require.NoError(t, store.Save(ctx, sess))

	before := time.Now()
	require.NoError(t, store.UpdateConnection(ctx, "alice", "sock-1"))

	got, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "sock-1", got.ConnectionID)
	require.Equal(t, "tok", got.Token)
	require.True(t, got.ExpiresAt.Equal(expiry))
	require.False(t, got.LastActiveAt.Before(before))
}

func TestUpdateConnectionWithoutSession(t *testing.T) {
	store := newStore(newFakeDurable(), newFakeCache())
	err := store.UpdateConnection(context.Background(), "ghost", "sock-1")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestMarkForcedLogout(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	cache := newFakeCache()
	store := newStore(durable, cache)

	require.NoError(t, store.Save(ctx, newSession("alice", "tok")))
	require.NoError(t, store.MarkForcedLogout(ctx, "alice"))

	got, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, got.ForcedLogout)
	require.True(t, got.LoggedOut)
	// Forced-logout records get the shorter retention window in the cache.
	require.Equal(t, testForcedTTL, cache.ttlOf("core:session:alice"))
}

func TestMarkLoggedOut(t *testing.T) {
	ctx := context.Background()
	store := newStore(newFakeDurable(), newFakeCache())

	require.NoError(t, store.Save(ctx, newSession("alice", "tok")))
	require.NoError(t, store.MarkLoggedOut(ctx, "alice"))

	got, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, got.LoggedOut)
	require.False(t, got.ForcedLogout)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	durable := newFakeDurable()
	store := newStore(durable, newFakeCache())

	ended := newSession("alice", "t1")
	ended.LoggedOut = true
	require.NoError(t, durable.Save(ctx, ended))

	stale := newSession("bob", "t2")
	stale.LastActiveAt = time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, durable.Save(ctx, stale))

	fresh := newSession("carol", "t3")
	require.NoError(t, durable.Save(ctx, fresh))

	res, err := store.Sweep(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Ended)
	require.EqualValues(t, 1, res.Abandoned)

	require.Equal(t, 1, durable.count())
	got, err := store.Get(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, "t3", got.Token)
}
