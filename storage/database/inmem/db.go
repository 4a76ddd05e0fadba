// Package inmemdb provides mutex-guarded in-memory repositories, used by tests & the "memory" store.
package inmemdb

import (
	"sync"
	"time"

	"github.com/trezcool/portal/core/auth"
	"github.com/trezcool/portal/core/grade"
	"github.com/trezcool/portal/core/user"
)

type (
	DB struct {
		user      *userTable
		mark      *markTable
		blacklist *blacklistTable
		window    *windowTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	markTable struct {
		sync.RWMutex
		table map[markKey]*grade.Mark
	}

	blacklistTable struct {
		sync.RWMutex
		table map[string]time.Time // jti: expiresAt
	}

	windowTable struct {
		sync.Mutex
		table map[auth.WindowKey]*auth.Window
	}
)

func Open() *DB {
	return &DB{
		user:      &userTable{table: make(map[string]*user.User)},
		mark:      &markTable{table: make(map[markKey]*grade.Mark)},
		blacklist: &blacklistTable{table: make(map[string]time.Time)},
		window:    &windowTable{table: make(map[auth.WindowKey]*auth.Window)},
	}
}
