package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/portal/core"
)

var ErrEmptyTokenID = errors.New("empty token id")

// BlacklistRepository stores revoked token ids until they expire.
type BlacklistRepository interface {
	// AddToken is idempotent: adding a known jti again is not an error.
	AddToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
	// PurgeExpiredTokens deletes the entries expired at `now` and returns how many were deleted.
	PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// Blacklist revokes tokens before their natural expiry.
type Blacklist struct {
	repo BlacklistRepository
	log  core.Logger
}

func NewBlacklist(repo BlacklistRepository, logger core.Logger) *Blacklist {
	return &Blacklist{repo: repo, log: logger}
}

// Add revokes jti until expiresAt. Revoking the same jti twice is not an error.
func (bl *Blacklist) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	jti = core.CleanString(jti)
	if jti == "" {
		return ErrEmptyTokenID
	}
	if err := bl.repo.AddToken(ctx, jti, expiresAt.UTC()); err != nil {
		return errors.Wrap(err, "blacklisting token")
	}
	blacklistedTokens.Inc()
	return nil
}

// IsBlacklisted is a pure membership check; it never cleans anything up.
func (bl *Blacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	listed, err := bl.repo.IsTokenBlacklisted(ctx, jti)
	if err != nil {
		return false, errors.Wrap(err, "checking blacklist")
	}
	return listed, nil
}

// Purge deletes the entries whose token has expired by now.
func (bl *Blacklist) Purge(ctx context.Context) (int64, error) {
	n, err := bl.repo.PurgeExpiredTokens(ctx, nowFunc().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "purging blacklist")
	}
	return n, nil
}
