// Package mysql implements storage.Store on MySQL.  Row-level
// exclusivity for the capacity ledger comes from SELECT ... FOR UPDATE
// inside WithinTx; deadlocks and lock wait timeouts are surfaced as
// storage.ErrConflict so the coordinator can retry.
package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/calebferro/slotbook/internal/storage"
)

// Store wraps a *sql.DB opened by internal/database.
type Store struct {
	db *sql.DB
}

// New returns a Store bound to the given database handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// WithinTx begins a transaction, runs fn against it, and commits unless
// fn (or the commit itself) fails.  Rollback on failure follows the
// committed-flag pattern so a panic also rolls back.
func (s *Store) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()
	if err := fn(&dbTx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return mapErr(err)
	}
	committed = true
	return nil
}

// dbTx implements storage.Tx over one *sql.Tx.
type dbTx struct {
	tx *sql.Tx
}

// mapErr translates driver errors into the storage sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1062: // duplicate key
			return storage.ErrDuplicate
		case 1205, 1213: // lock wait timeout, deadlock
			return storage.ErrConflict
		}
	}
	return err
}
