package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var ErrWindowNotFound = errors.New("rate limit window not found")

type (
	// WindowKey identifies a rate limit bucket.
	WindowKey struct {
		ClientIP string
		Endpoint string
	}

	// Window counts the requests of a bucket since Start.
	Window struct {
		Key   WindowKey
		Count int
		Start time.Time // UTC
	}

	WindowRepository interface {
		// GetWindow returns ErrWindowNotFound when the bucket has no window.
		GetWindow(ctx context.Context, key WindowKey) (Window, error)
		// CreateWindow opens a window with a count of 1. ttl is a hint for stores that expire keys natively.
		CreateWindow(ctx context.Context, key WindowKey, start time.Time, ttl time.Duration) error
		// IncrementWindow returns ErrWindowNotFound when the bucket has no window anymore.
		IncrementWindow(ctx context.Context, key WindowKey) error
		// DeleteWindowsBefore deletes the windows of every bucket started before cutoff.
		DeleteWindowsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	// RateLimiter is a fixed-window request counter per (client ip, endpoint).
	RateLimiter struct {
		repo WindowRepository
	}
)

func NewRateLimiter(repo WindowRepository) *RateLimiter {
	return &RateLimiter{repo: repo}
}

// Check counts a request of ip on endpoint and reports whether it is allowed:
// at most `limit` requests are allowed per window. Stale windows of every bucket are swept first.
// A non-positive limit denies every request.
func (rl *RateLimiter) Check(ctx context.Context, ip, endpoint string, limit int, window time.Duration) (bool, error) {
	now := nowFunc().UTC()
	if _, err := rl.repo.DeleteWindowsBefore(ctx, now.Add(-window)); err != nil {
		return false, errors.Wrap(err, "sweeping rate limit windows")
	}

	key := WindowKey{ClientIP: ip, Endpoint: endpoint}
	w, err := rl.repo.GetWindow(ctx, key)
	switch errors.Cause(err) {
	case nil:
		if w.Count >= limit {
			throttledRequests.Inc()
			return false, nil
		}
		err = rl.repo.IncrementWindow(ctx, key)
		switch errors.Cause(err) {
		case nil:
			return true, nil
		case ErrWindowNotFound: // swept or expired since read
			return rl.open(ctx, key, now, limit, window)
		default:
			return false, errors.Wrap(err, "incrementing rate limit window")
		}
	case ErrWindowNotFound:
		return rl.open(ctx, key, now, limit, window)
	default:
		return false, errors.Wrap(err, "getting rate limit window")
	}
}

// open starts a new window counting the current request.
func (rl *RateLimiter) open(ctx context.Context, key WindowKey, now time.Time, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		throttledRequests.Inc()
		return false, nil
	}
	if err := rl.repo.CreateWindow(ctx, key, now, window); err != nil {
		return false, errors.Wrap(err, "creating rate limit window")
	}
	return true, nil
}
