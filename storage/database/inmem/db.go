// Package inmemdb keeps repositories in memory, for tests and throwaway setups.
package inmemdb

import (
	"sync"

	"github.com/cwarwicker/elbp/core/user"
)

type userTable struct {
	mutex sync.RWMutex
	pk    int64
	table map[int64]*user.User
}

type DB struct {
	user *userTable
}

func NewDB() *DB {
	return &DB{
		user: &userTable{table: make(map[int64]*user.User)},
	}
}
