package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type txKey struct{}

// Transactor runs units of work inside one serializable transaction. The
// transaction travels on the context so repository calls made by fn join it.
type Transactor struct {
	db         *sqlx.DB
	maxRetries int
	logger     *zap.Logger
}

// NewTransactor constructs a Transactor. Serialization failures and deadlocks
// are retried up to maxRetries times.
func NewTransactor(db *sqlx.DB, maxRetries int, logger *zap.Logger) *Transactor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transactor{db: db, maxRetries: maxRetries, logger: logger}
}

// WithinTx executes fn in a transaction, committing when fn returns nil and
// rolling back otherwise. Nested calls reuse the outer transaction.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}
	for attempt := 0; ; attempt++ {
		err := t.run(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt >= t.maxRetries || ctx.Err() != nil {
			return err
		}
		t.logger.Warn("retrying transaction", zap.Int("attempt", attempt+1), zap.Error(err))
	}
}

func (t *Transactor) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := t.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// executor returns the transaction bound to ctx, or db when there is none.
func executor(ctx context.Context, db *sqlx.DB) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db
}

// InTx reports whether ctx carries a transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return ok
}
