package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/portal/core/auth"
)

type blacklistRepository struct {
	db *blacklistTable
}

var _ auth.BlacklistRepository = (*blacklistRepository)(nil) // interface compliance check

func NewBlacklistRepository(db *DB) auth.BlacklistRepository {
	return &blacklistRepository{db: db.blacklist}
}

func (repo *blacklistRepository) AddToken(_ context.Context, jti string, expiresAt time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[jti]; !ok {
		repo.db.table[jti] = expiresAt
	}
	return nil
}

func (repo *blacklistRepository) IsTokenBlacklisted(_ context.Context, jti string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	_, ok := repo.db.table[jti]
	return ok, nil
}

func (repo *blacklistRepository) PurgeExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var n int64
	for jti, exp := range repo.db.table {
		if exp.Before(now) {
			delete(repo.db.table, jti)
			n++
		}
	}
	return n, nil
}

type windowRepository struct {
	db *windowTable
}

var _ auth.WindowRepository = (*windowRepository)(nil) // interface compliance check

func NewWindowRepository(db *DB) auth.WindowRepository {
	return &windowRepository{db: db.window}
}

func (repo *windowRepository) GetWindow(_ context.Context, key auth.WindowKey) (auth.Window, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if w, ok := repo.db.table[key]; ok {
		return *w, nil
	}
	return auth.Window{}, auth.ErrWindowNotFound
}

func (repo *windowRepository) CreateWindow(_ context.Context, key auth.WindowKey, start time.Time, _ time.Duration) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[key] = &auth.Window{Key: key, Count: 1, Start: start}
	return nil
}

func (repo *windowRepository) IncrementWindow(_ context.Context, key auth.WindowKey) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if w, ok := repo.db.table[key]; ok {
		w.Count++
		return nil
	}
	return auth.ErrWindowNotFound
}

func (repo *windowRepository) DeleteWindowsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var n int64
	for k, w := range repo.db.table {
		if w.Start.Before(cutoff) {
			delete(repo.db.table, k)
			n++
		}
	}
	return n, nil
}
