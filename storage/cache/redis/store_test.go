package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/portal/core"
	"github.com/trezcool/portal/core/auth"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestBlacklistRepository(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	repo := NewBlacklistRepository(client)

	require.NoError(t, repo.AddToken(ctx, "abc", time.Now().Add(time.Hour)))
	require.NoError(t, repo.AddToken(ctx, "abc", time.Now().Add(2*time.Hour))) // idempotent

	listed, err := repo.IsTokenBlacklisted(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, listed)
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL(blacklistPrefix+"abc").Seconds(), 2)

	listed, err = repo.IsTokenBlacklisted(ctx, "xyz")
	require.NoError(t, err)
	assert.False(t, listed)

	// expires with the token
	mr.FastForward(time.Hour + time.Second)
	listed, err = repo.IsTokenBlacklisted(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, listed)

	// already expired tokens are still listed right after being added
	require.NoError(t, repo.AddToken(ctx, "old", time.Now().Add(-time.Hour)))
	listed, _ = repo.IsTokenBlacklisted(ctx, "old")
	assert.True(t, listed)
}

func TestBlacklistRepository_storeDown(t *testing.T) {
	mr, client := newClient(t)
	repo := NewBlacklistRepository(client)
	mr.Close()

	_, err := repo.IsTokenBlacklisted(context.Background(), "abc")
	assert.Error(t, err)
}

func TestWindowRepository_withRateLimiter(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	repo := NewWindowRepository(client)
	rl := auth.NewRateLimiter(repo)

	for i := 0; i < 2; i++ {
		ok, err := rl.Check(ctx, "10.0.0.1", "/v1/grades/gpa", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := rl.Check(ctx, "10.0.0.1", "/v1/grades/gpa", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	w, err := repo.GetWindow(ctx, auth.WindowKey{ClientIP: "10.0.0.1", Endpoint: "/v1/grades/gpa"})
	require.NoError(t, err)
	assert.Equal(t, 2, w.Count)

	mr.FastForward(time.Minute)
	_, err = repo.GetWindow(ctx, auth.WindowKey{ClientIP: "10.0.0.1", Endpoint: "/v1/grades/gpa"})
	assert.Equal(t, auth.ErrWindowNotFound, err)

	ok, err = rl.Check(ctx, "10.0.0.1", "/v1/grades/gpa", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWindowRepository_IncrementWindow_expired(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	repo := NewWindowRepository(client)
	key := auth.WindowKey{ClientIP: "10.0.0.2", Endpoint: "/v1/auth/token"}

	require.NoError(t, repo.CreateWindow(ctx, key, time.Now(), time.Minute))
	require.NoError(t, repo.IncrementWindow(ctx, key))
	w, err := repo.GetWindow(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, w.Count)

	// expires between the read and the increment
	mr.FastForward(time.Minute)
	assert.Equal(t, auth.ErrWindowNotFound, repo.IncrementWindow(ctx, key))
	assert.False(t, mr.Exists(windowKey(key)))

	// the limiter opens a fresh window, with its ttl
	rl := auth.NewRateLimiter(repo)
	ok, err := rl.Check(ctx, key.ClientIP, key.Endpoint, 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.TTL(windowKey(key)) > 0, "fresh window has no ttl")

	ok, err = rl.Check(ctx, key.ClientIP, key.Endpoint, 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWindowRepository_GetWindow_partialHash(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	repo := NewWindowRepository(client)
	key := auth.WindowKey{ClientIP: "10.0.0.3", Endpoint: "/v1/grades/gpa"}

	mr.HSet(windowKey(key), countField, "3")
	_, err := repo.GetWindow(ctx, key)
	assert.Equal(t, auth.ErrWindowNotFound, err)

	// overwritten by the limiter instead of staying locked
	ok, err := auth.NewRateLimiter(repo).Check(ctx, key.ClientIP, key.Endpoint, 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	w, err := repo.GetWindow(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Count)
}

func TestRepositories_clientClosed(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	blacklist := NewBlacklistRepository(client)
	windows := NewWindowRepository(client)
	key := auth.WindowKey{ClientIP: "10.0.0.4", Endpoint: "/v1/auth/me"}
	require.NoError(t, client.Close())

	_, err := blacklist.IsTokenBlacklisted(ctx, "abc")
	assert.True(t, core.IsShutdown(err), "IsTokenBlacklisted() error = %v", err)

	err = blacklist.AddToken(ctx, "abc", time.Now().Add(time.Hour))
	assert.True(t, core.IsShutdown(err), "AddToken() error = %v", err)

	_, err = windows.GetWindow(ctx, key)
	assert.True(t, core.IsShutdown(err), "GetWindow() error = %v", err)

	err = windows.IncrementWindow(ctx, key)
	assert.True(t, core.IsShutdown(err), "IncrementWindow() error = %v", err)
}

func TestBlacklistRepository_storeDown_notShutdown(t *testing.T) {
	mr, client := newClient(t)
	mr.Close()

	_, err := NewBlacklistRepository(client).IsTokenBlacklisted(context.Background(), "abc")
	require.Error(t, err)
	assert.False(t, core.IsShutdown(err))
}
