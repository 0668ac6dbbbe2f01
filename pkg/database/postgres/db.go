package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"

	"github.com/kbruccoleri/solana-bpf-program/pkg/retry"
)

type txStructContextKey struct{}
type txIsolationContextKey struct{}

const maxSerializationRetries = 5

var (
	ErrAlreadyInTx = errors.New("already executing in existing db tx")
	ErrNotInTx     = errors.New("not executing in existing db tx")
)

// IsSerializationFailure reports whether err is a serializable isolation
// conflict that is safe to retry.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.SerializationFailure
}

// ExecuteRetryable runs fn until it succeeds, fails with an error other than a
// serialization failure, or exhausts its attempts.
func ExecuteRetryable(ctx context.Context, fn func(context.Context) error) error {
	_, err := retry.Retry(
		ctx,
		fn,
		retry.Limit(maxSerializationRetries),
		func(_ context.Context, _ uint, err error) bool {
			return IsSerializationFailure(err)
		},
	)
	return err
}

// ExecuteTxWithinCtx executes a DB transaction that's scoped to a call to fn. The transaction
// is passed along with the context. Once fn is complete, commit/rollback is called based
// on whether an error is returned.
func ExecuteTxWithinCtx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(context.Context) error) error {
	if isolation == sql.LevelDefault {
		isolation = sql.LevelReadCommitted // Postgres default
	}

	if ctx.Value(txStructContextKey{}) != nil {
		return ErrAlreadyInTx
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{
		Isolation: isolation,
	})
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, txStructContextKey{}, tx)
	ctx = context.WithValue(ctx, txIsolationContextKey{}, isolation)

	if err := fn(ctx); err != nil {
		// Rollback always runs so sql.DB releases the connection.
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("failed to rollback transaction: %w", rollbackErr)
		}
		return err
	}
	return tx.Commit()
}

// ExecuteInTx runs fn in the transaction carried by ctx, or in a new one it
// commits itself when ctx carries none.
func ExecuteInTx(ctx context.Context, db *sqlx.DB, isolation sql.IsolationLevel, fn func(tx *sqlx.Tx) error) error {
	if isolation == sql.LevelDefault {
		isolation = sql.LevelReadCommitted // Postgres default
	}

	tx, err := getTxFromCtx(ctx, isolation)
	if err != nil && err != ErrNotInTx {
		return err
	}

	startedNewTx := err == ErrNotInTx
	if startedNewTx {
		tx, err = db.BeginTxx(ctx, &sql.TxOptions{
			Isolation: isolation,
		})
		if err != nil {
			return err
		}
	}

	if err := fn(tx); err != nil {
		if startedNewTx {
			if rollBackErr := tx.Rollback(); rollBackErr != nil {
				return fmt.Errorf("failed to rollback transaction: %w", rollBackErr)
			}
		}
		return err
	}
	if startedNewTx {
		return tx.Commit()
	}
	return nil
}

func getTxFromCtx(ctx context.Context, desiredIsolation sql.IsolationLevel) (*sqlx.Tx, error) {
	txFromCtx := ctx.Value(txStructContextKey{})
	if txFromCtx == nil {
		return nil, ErrNotInTx
	}

	tx, ok := txFromCtx.(*sqlx.Tx)
	if !ok {
		return nil, errors.New("invalid type for tx")
	}

	currentIsolation, ok := ctx.Value(txIsolationContextKey{}).(sql.IsolationLevel)
	if !ok {
		return nil, errors.New("unexpectedly don't have isolation level set")
	}

	if currentIsolation < desiredIsolation {
		return nil, errors.New("current tx doesn't meet isolation level requirements")
	}

	return tx, nil
}
