package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/portal/core/auth"
	inmemdb "github.com/trezcool/portal/storage/database/inmem"
)

type failingWindowRepo struct {
	auth.WindowRepository
}

func (failingWindowRepo) DeleteWindowsBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("connection refused")
}

// vanishingWindowRepo loses every window right before an increment, like a concurrent sweep would.
type vanishingWindowRepo struct {
	auth.WindowRepository
}

func (r vanishingWindowRepo) IncrementWindow(ctx context.Context, key auth.WindowKey) error {
	if _, err := r.DeleteWindowsBefore(ctx, time.Now().Add(time.Hour)); err != nil {
		return err
	}
	return r.WindowRepository.IncrementWindow(ctx, key)
}

func TestRateLimiter_Check(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	reset := auth.SetNowFunc(func() time.Time { return now })
	defer reset()

	windows := inmemdb.NewWindowRepository(inmemdb.Open())
	rl := auth.NewRateLimiter(windows)
	const limit = 3

	for i := 1; i <= limit; i++ {
		ok, err := rl.Check(ctx, "10.0.0.1", "/v1/grades/scale", limit, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i)
	}
	ok, err := rl.Check(ctx, "10.0.0.1", "/v1/grades/scale", limit, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "request %d should be denied", limit+1)

	// other buckets are independent, including the same path with a query string
	ok, _ = rl.Check(ctx, "10.0.0.2", "/v1/grades/scale", limit, time.Minute)
	assert.True(t, ok)
	ok, _ = rl.Check(ctx, "10.0.0.1", "/v1/grades/scale?x=1", limit, time.Minute)
	assert.True(t, ok)

	// still denied within the window
	now = now.Add(59 * time.Second)
	ok, _ = rl.Check(ctx, "10.0.0.1", "/v1/grades/scale", limit, time.Minute)
	assert.False(t, ok)

	// the window elapsed: the counter resets
	now = now.Add(2 * time.Second)
	ok, err = rl.Check(ctx, "10.0.0.1", "/v1/grades/scale", limit, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	w, err := windows.GetWindow(ctx, auth.WindowKey{ClientIP: "10.0.0.1", Endpoint: "/v1/grades/scale"})
	require.NoError(t, err)
	assert.Equal(t, 1, w.Count)
	assert.Equal(t, now, w.Start)

	// the sweep is global: the other buckets were deleted too
	_, err = windows.GetWindow(ctx, auth.WindowKey{ClientIP: "10.0.0.2", Endpoint: "/v1/grades/scale"})
	assert.Equal(t, auth.ErrWindowNotFound, err)
}

func TestRateLimiter_Check_zeroLimit(t *testing.T) {
	rl := auth.NewRateLimiter(inmemdb.NewWindowRepository(inmemdb.Open()))
	ok, err := rl.Check(context.Background(), "10.0.0.1", "/", 0, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRateLimiter_Check_storeError(t *testing.T) {
	rl := auth.NewRateLimiter(failingWindowRepo{})
	ok, err := rl.Check(context.Background(), "10.0.0.1", "/", 10, time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRateLimiter_Check_windowSweptBeforeIncrement(t *testing.T) {
	ctx := context.Background()
	windows := inmemdb.NewWindowRepository(inmemdb.Open())
	rl := auth.NewRateLimiter(vanishingWindowRepo{windows})
	key := auth.WindowKey{ClientIP: "10.0.0.1", Endpoint: "/v1/grades/gpa"}

	for i := 0; i < 3; i++ {
		ok, err := rl.Check(ctx, key.ClientIP, key.Endpoint, 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	w, err := windows.GetWindow(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Count)
}
