// Package redisstore keeps the auth state (blacklist & rate limit windows) in redis,
// relying on key expiry instead of sweeps.
package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/portal/core"
	"github.com/trezcool/portal/core/auth"
)

const (
	blacklistPrefix = "portal:blacklist:"
	windowPrefix    = "portal:ratelimit:"

	countField = "count"
	startField = "start"

	// minTTL keeps already expired tokens listed for a moment, so that Add is always observable.
	minTTL = time.Second
)

var incrementScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("HINCRBY", KEYS[1], ARGV[1], 1)
end
return false
`)

// trapClosed turns the errors of a closed client into a shutdown error: the app cannot serve without its store.
func trapClosed(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return core.NewShutdownError("redis client closed", err)
	}
	return err
}

// Connect returns a client to the configured redis server, once it answers.
func Connect(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

type blacklistRepository struct {
	rdb redis.Cmdable
}

var _ auth.BlacklistRepository = (*blacklistRepository)(nil) // interface compliance check

func NewBlacklistRepository(rdb redis.Cmdable) auth.BlacklistRepository {
	return &blacklistRepository{rdb: rdb}
}

func (repo *blacklistRepository) AddToken(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl < minTTL {
		ttl = minTTL
	}
	// SETNX keeps the first expiry of a jti
	if err := repo.rdb.SetNX(ctx, blacklistPrefix+jti, expiresAt.UTC().Unix(), ttl).Err(); err != nil {
		return trapClosed(errors.Wrap(err, "setting blacklisted token"))
	}
	return nil
}

func (repo *blacklistRepository) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := repo.rdb.Exists(ctx, blacklistPrefix+jti).Result()
	if err != nil {
		return false, trapClosed(errors.Wrap(err, "checking blacklisted token"))
	}
	return n > 0, nil
}

// PurgeExpiredTokens is a no-op: entries expire with their token.
func (repo *blacklistRepository) PurgeExpiredTokens(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type windowRepository struct {
	rdb redis.Cmdable
}

var _ auth.WindowRepository = (*windowRepository)(nil) // interface compliance check

func NewWindowRepository(rdb redis.Cmdable) auth.WindowRepository {
	return &windowRepository{rdb: rdb}
}

func windowKey(key auth.WindowKey) string {
	return windowPrefix + key.ClientIP + "|" + key.Endpoint
}

// GetWindow reports a hash missing one of its fields as not found, so that the caller opens a fresh window.
func (repo *windowRepository) GetWindow(ctx context.Context, key auth.WindowKey) (auth.Window, error) {
	vals, err := repo.rdb.HGetAll(ctx, windowKey(key)).Result()
	if err != nil {
		return auth.Window{}, trapClosed(errors.Wrap(err, "getting rate limit window"))
	}
	countVal, hasCount := vals[countField]
	startVal, hasStart := vals[startField]
	if !hasCount || !hasStart {
		return auth.Window{}, auth.ErrWindowNotFound
	}

	count, err := strconv.Atoi(countVal)
	if err != nil {
		return auth.Window{}, errors.Wrap(err, "parsing rate limit window count")
	}
	start, err := strconv.ParseInt(startVal, 10, 64)
	if err != nil {
		return auth.Window{}, errors.Wrap(err, "parsing rate limit window start")
	}
	return auth.Window{Key: key, Count: count, Start: time.Unix(0, start).UTC()}, nil
}

func (repo *windowRepository) CreateWindow(ctx context.Context, key auth.WindowKey, start time.Time, ttl time.Duration) error {
	k := windowKey(key)
	_, err := repo.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, countField, 1, startField, start.UnixNano())
		pipe.PExpire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return trapClosed(errors.Wrap(err, "creating rate limit window"))
	}
	return nil
}

// IncrementWindow never recreates an expired window: HINCRBY alone would leave a hash without start nor ttl.
func (repo *windowRepository) IncrementWindow(ctx context.Context, key auth.WindowKey) error {
	err := incrementScript.Run(ctx, repo.rdb, []string{windowKey(key)}, countField).Err()
	switch {
	case err == redis.Nil:
		return auth.ErrWindowNotFound
	case err != nil:
		return trapClosed(errors.Wrap(err, "incrementing rate limit window"))
	}
	return nil
}

// DeleteWindowsBefore is a no-op: windows expire after their ttl.
func (repo *windowRepository) DeleteWindowsBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}
