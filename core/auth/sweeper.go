package auth

import (
	"context"
	"time"

	"github.com/trezcool/portal/core"
)

// Sweeper periodically deletes expired blacklist entries and stale rate limit windows,
// off the request path. Stores that expire keys natively make it a no-op.
type Sweeper struct {
	blacklist *Blacklist
	windows   WindowRepository
	window    time.Duration
	interval  time.Duration
	store     string
	log       core.Logger
}

func NewSweeper(conf *core.Config, blacklist *Blacklist, windows WindowRepository, logger core.Logger) *Sweeper {
	return &Sweeper{
		blacklist: blacklist,
		windows:   windows,
		window:    conf.RateLimit.Window,
		interval:  conf.Blacklist.SweepInterval,
		store:     conf.Store,
		log:       logger,
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Warn("sweeper disabled: non-positive interval")
		return
	}
	s.log.Info("sweeper started", map[string]interface{}{"interval": s.interval.String(), "store": s.store})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			if _, _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error("sweep failed", err)
			}
		}
	}
}

// SweepOnce purges the blacklist & the windows once, returning how many of each were deleted.
func (s *Sweeper) SweepOnce(ctx context.Context) (tokens, windows int64, err error) {
	tokens, err = s.blacklist.Purge(ctx)
	if err != nil {
		return 0, 0, err
	}
	windows, err = s.windows.DeleteWindowsBefore(ctx, nowFunc().UTC().Add(-s.window))
	if err != nil {
		return tokens, 0, err
	}
	sweptEntries.WithLabelValues(s.store).Add(float64(tokens + windows))
	if tokens+windows > 0 {
		s.log.Info("sweep done", map[string]interface{}{"tokens": tokens, "windows": windows})
	}
	return tokens, windows, nil
}
