package repositories

import (
	"chat-relay/errors"
	"context"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// Transactor runs a unit of work in a single read-write badger transaction.
// Repositories built on the same *badger.DB pick the transaction up from the context.
type Transactor struct {
	db         *badger.DB
	log        *slog.Logger
	maxRetries int
}

func NewTransactor(db *badger.DB, log *slog.Logger, maxRetries int) *Transactor {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Transactor{db: db, log: log, maxRetries: maxRetries}
}

// WithinTransaction commits everything fn writes at once. When the commit is
// rejected with badger.ErrConflict the whole unit is replayed on a fresh transaction,
// fn must therefore be safe to run more than once.
func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txnFromContext(ctx); ok {
		return fn(ctx)
	}
	attempt := 0
	return retryOnConflict(ctx, t.maxRetries, func() error {
		attempt++
		if attempt > 1 {
			t.log.Debug("Replaying transaction after conflict", "attempt", attempt)
		}
		txn := t.db.NewTransaction(true)
		defer txn.Discard()
		if err := fn(withTxn(ctx, txn)); err != nil {
			return err
		}
		if err := txn.Commit(); err != nil {
			if errors.Is(err, badger.ErrConflict) {
				return err
			}
			return errors.NewStoreError("commit", err)
		}
		return nil
	})
}
