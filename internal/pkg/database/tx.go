package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Transactor runs a function as one atomic unit of work against the store.
//
// Calls made with a context that is already inside a unit join that unit instead
// of opening a nested one, so a caller can compose several repository operations
// (for example a ledger debit and an entitlement upsert) into a single commit.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type sqlTxKey struct{}

type sqlUnit struct {
	tx          *sqlx.Tx
	afterCommit []func()
}

// SQLTransactor opens PostgreSQL transactions. Row-level serialisation is done by the
// repositories with SELECT ... FOR UPDATE, so READ COMMITTED is sufficient.
type SQLTransactor struct {
	db *sqlx.DB
}

func NewSQLTransactor(db *sqlx.DB) *SQLTransactor {
	return &SQLTransactor{db: db}
}

func (t *SQLTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(sqlTxKey{}).(*sqlUnit); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	unit := &sqlUnit{tx: tx}
	if err := fn(context.WithValue(ctx, sqlTxKey{}, unit)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	for _, hook := range unit.afterCommit {
		hook()
	}
	return nil
}

// Executor returns the transaction bound to ctx, or db when ctx is outside a unit.
func Executor(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if unit, ok := ctx.Value(sqlTxKey{}).(*sqlUnit); ok {
		return unit.tx
	}
	return db
}

// InTx reports whether ctx carries an open unit of work.
func InTx(ctx context.Context) bool {
	if _, ok := ctx.Value(sqlTxKey{}).(*sqlUnit); ok {
		return true
	}
	_, ok := ctx.Value(memTxKey{}).(*memoryUnit)
	return ok
}

// AfterCommit schedules fn to run once the unit bound to ctx commits.
// Outside a unit fn runs immediately. Hooks are dropped on rollback.
func AfterCommit(ctx context.Context, fn func()) {
	if unit, ok := ctx.Value(sqlTxKey{}).(*sqlUnit); ok {
		unit.afterCommit = append(unit.afterCommit, fn)
		return
	}
	if unit, ok := ctx.Value(memTxKey{}).(*memoryUnit); ok {
		unit.afterCommit = append(unit.afterCommit, fn)
		return
	}
	fn()
}

type memTxKey struct{}

type memoryUnit struct {
	owner       *MemoryTransactor
	undo        []func()
	afterCommit []func()
}

// MemoryTransactor serialises units of work over in-memory repositories with a single
// mutex. Mutations register undo steps through OnRollback; a failed unit replays them
// in reverse so no partial effect survives.
type MemoryTransactor struct {
	mu sync.Mutex
}

func NewMemoryTransactor() *MemoryTransactor {
	return &MemoryTransactor{}
}

func (t *MemoryTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if unit, ok := ctx.Value(memTxKey{}).(*memoryUnit); ok && unit.owner == t {
		return fn(ctx)
	}

	t.mu.Lock()
	unit := &memoryUnit{owner: t}
	defer func() {
		if p := recover(); p != nil {
			unit.rollback()
			t.mu.Unlock()
			panic(p)
		}
		if err != nil {
			unit.rollback()
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()
		for _, hook := range unit.afterCommit {
			hook()
		}
	}()

	return fn(context.WithValue(ctx, memTxKey{}, unit))
}

func (u *memoryUnit) rollback() {
	for i := len(u.undo) - 1; i >= 0; i-- {
		u.undo[i]()
	}
	u.undo = nil
	u.afterCommit = nil
}

// OnRollback registers an undo step with the in-memory unit bound to ctx.
func OnRollback(ctx context.Context, undo func()) {
	if unit, ok := ctx.Value(memTxKey{}).(*memoryUnit); ok {
		unit.undo = append(unit.undo, undo)
	}
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}
