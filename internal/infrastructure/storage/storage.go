package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoRows единая ошибка "строка не найдена" для обоих драйверов
var ErrNoRows = errors.New("storage: no rows in result set")

type Row interface {
	Scan(dest ...any) error
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Querier executes queries written with '?' placeholders; drivers rebind them as needed.
type Querier interface {
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Exec(ctx context.Context, query string, args ...any) (int64, error)
}

// Conn Querier плюс диалектные операции
type Conn interface {
	Querier
	// Columns returns the column names of table; empty when the table does not exist.
	Columns(ctx context.Context, table string) (map[string]bool, error)
	// SyncSequence moves the id generator of table past its largest id.
	SyncSequence(ctx context.Context, table string) error
}

type Tx interface {
	Conn
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DB соединение с хранилищем узла (PostgreSQL или SQLite)
type DB interface {
	Conn
	Begin(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	Driver() string
	Close() error
}

// WithinTx runs fn in one transaction: commit on nil, rollback on error or panic.
func WithinTx(ctx context.Context, db DB, fn func(ctx context.Context, c Conn) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	rollback := func() error {
		return tx.Rollback(context.WithoutCancel(ctx))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
