package store

import (
	"context"

	"gorm.io/gorm"
)

// Txn is the ambient transaction handle passed through every mutating
// operation. Statement execution happens against DB(); callbacks registered
// with PostCommit run only after the transaction commits, so physical side
// effects (like attachment byte removal) never outrun a rollback.
type Txn struct {
	db         *gorm.DB
	postCommit []func()
}

// DB returns the transactional database handle.
func (t *Txn) DB() *gorm.DB {
	return t.db
}

// PostCommit schedules fn to run after a successful commit. Callbacks run in
// registration order and are discarded on rollback.
func (t *Txn) PostCommit(fn func()) {
	t.postCommit = append(t.postCommit, fn)
}

// Transact runs fn inside one database transaction. A non-nil error from fn
// rolls back every statement executed so far and drops all post-commit
// callbacks.
func (s *Store) Transact(ctx context.Context, fn func(txn *Txn) error) error {
	txn := &Txn{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txn.db = tx
		return fn(txn)
	})
	if err != nil {
		return err
	}
	for _, cb := range txn.postCommit {
		cb()
	}
	return nil
}
