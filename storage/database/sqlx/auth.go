package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/portal/core"
	"github.com/trezcool/portal/core/auth"
)

type blacklistRepository struct {
	exec core.DBExecutor
}

var _ auth.BlacklistRepository = (*blacklistRepository)(nil) // interface compliance check

func NewBlacklistRepository(exec core.DBExecutor) auth.BlacklistRepository {
	return &blacklistRepository{exec: exec}
}

func (repo *blacklistRepository) AddToken(ctx context.Context, jti string, expiresAt time.Time) error {
	q := `INSERT INTO token_blacklist (jti, expires_at) VALUES ($1, $2) ON CONFLICT (jti) DO NOTHING`
	if _, err := repo.exec.ExecContext(ctx, q, jti, expiresAt.UTC()); err != nil {
		return errors.Wrap(err, "inserting blacklisted token")
	}
	return nil
}

func (repo *blacklistRepository) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM token_blacklist WHERE jti = $1)`
	if err := repo.exec.GetContext(ctx, &exists, q, jti); err != nil {
		return false, errors.Wrap(err, "checking blacklisted token")
	}
	return exists, nil
}

func (repo *blacklistRepository) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := repo.exec.ExecContext(ctx, `DELETE FROM token_blacklist WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "purging blacklisted tokens")
	}
	return res.RowsAffected()
}

type windowRepository struct {
	exec core.DBExecutor
}

var _ auth.WindowRepository = (*windowRepository)(nil) // interface compliance check

func NewWindowRepository(exec core.DBExecutor) auth.WindowRepository {
	return &windowRepository{exec: exec}
}

func (repo *windowRepository) GetWindow(ctx context.Context, key auth.WindowKey) (auth.Window, error) {
	var row struct {
		Count int       `db:"request_count"`
		Start time.Time `db:"window_start"`
	}
	q := `SELECT request_count, window_start FROM rate_limit_windows WHERE client_ip = $1 AND endpoint = $2`
	if err := repo.exec.GetContext(ctx, &row, q, key.ClientIP, key.Endpoint); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return auth.Window{}, auth.ErrWindowNotFound
		}
		return auth.Window{}, errors.Wrap(err, "getting rate limit window")
	}
	return auth.Window{Key: key, Count: row.Count, Start: row.Start.UTC()}, nil
}

// CreateWindow also resets a window left behind by a concurrent request.
func (repo *windowRepository) CreateWindow(ctx context.Context, key auth.WindowKey, start time.Time, _ time.Duration) error {
	q := `INSERT INTO rate_limit_windows (client_ip, endpoint, request_count, window_start) VALUES ($1, $2, 1, $3)
		ON CONFLICT (client_ip, endpoint) DO UPDATE SET request_count = 1, window_start = EXCLUDED.window_start`
	if _, err := repo.exec.ExecContext(ctx, q, key.ClientIP, key.Endpoint, start.UTC()); err != nil {
		return errors.Wrap(err, "creating rate limit window")
	}
	return nil
}

func (repo *windowRepository) IncrementWindow(ctx context.Context, key auth.WindowKey) error {
	q := `UPDATE rate_limit_windows SET request_count = request_count + 1 WHERE client_ip = $1 AND endpoint = $2`
	res, err := repo.exec.ExecContext(ctx, q, key.ClientIP, key.Endpoint)
	if err != nil {
		return errors.Wrap(err, "incrementing rate limit window")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrWindowNotFound
	}
	return nil
}

func (repo *windowRepository) DeleteWindowsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := repo.exec.ExecContext(ctx, `DELETE FROM rate_limit_windows WHERE window_start < $1`, cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deleting rate limit windows")
	}
	return res.RowsAffected()
}
