// Package inmemdb provides in-memory repositories backing the services in
// tests and local tinkering. Data does not survive a restart.
package inmemdb

import (
	"context"
	"sync"

	"github.com/academia-dev/academia/core"
	"github.com/academia-dev/academia/core/activity"
	"github.com/academia-dev/academia/core/enrollment"
	"github.com/academia-dev/academia/core/lockout"
	"github.com/academia-dev/academia/core/user"
)

type DB struct {
	mu       sync.RWMutex
	users    map[string]*user.User
	apps     map[string]*enrollment.Application
	lockouts map[string]*lockout.Record
	log      []activity.Entry
}

func NewDB() *DB {
	return &DB{
		users:    make(map[string]*user.User),
		apps:     make(map[string]*enrollment.Application),
		lockouts: make(map[string]*lockout.Record),
	}
}

// Reset drops all stored data. For tests.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = make(map[string]*user.User)
	db.apps = make(map[string]*enrollment.Application)
	db.lockouts = make(map[string]*lockout.Record)
	db.log = nil
}

// InTx implements core.Transactor. The store is a single in-process map
// guarded by a mutex; writes apply immediately and a mid-function error does
// not undo earlier writes. Good enough for the tests this backs.
func (db *DB) InTx(_ context.Context, fn func(exec core.DBExecutor) error) error {
	return fn(nil)
}

var _ core.Transactor = (*DB)(nil)
