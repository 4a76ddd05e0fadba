package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/portal/core"
	"github.com/trezcool/portal/core/auth"
	inmemdb "github.com/trezcool/portal/storage/database/inmem"
	testutil "github.com/trezcool/portal/tests"
)

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	conf := core.NewTestConfig()
	conf.Blacklist.SweepInterval = 10 * time.Millisecond

	db := inmemdb.Open()
	windows := inmemdb.NewWindowRepository(db)
	bl := auth.NewBlacklist(inmemdb.NewBlacklistRepository(db), testutil.NewLogger())
	sweeper := auth.NewSweeper(conf, bl, windows, testutil.NewLogger())

	now := time.Now()
	require.NoError(t, bl.Add(ctx, "expired", now.Add(-time.Second)))
	require.NoError(t, bl.Add(ctx, "live", now.Add(time.Hour)))
	stale := auth.WindowKey{ClientIP: "10.0.0.1", Endpoint: "/"}
	fresh := auth.WindowKey{ClientIP: "10.0.0.2", Endpoint: "/"}
	require.NoError(t, windows.CreateWindow(ctx, stale, now.Add(-2*conf.RateLimit.Window), conf.RateLimit.Window))
	require.NoError(t, windows.CreateWindow(ctx, fresh, now, conf.RateLimit.Window))

	tokens, wins, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tokens)
	assert.Equal(t, int64(1), wins)

	_, err = windows.GetWindow(ctx, fresh)
	assert.NoError(t, err)
	listed, _ := bl.IsBlacklisted(ctx, "live")
	assert.True(t, listed)

	t.Run("run stops with its context", func(t *testing.T) {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			sweeper.Run(runCtx)
			close(done)
		}()

		require.NoError(t, bl.Add(ctx, "soon-expired", time.Now().Add(-time.Millisecond)))
		assert.Eventually(t, func() bool {
			listed, _ := bl.IsBlacklisted(ctx, "soon-expired")
			return !listed
		}, time.Second, 5*time.Millisecond)

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("sweeper did not stop")
		}
	})
}
