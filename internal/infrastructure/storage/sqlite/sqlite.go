package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"eventsync/internal/infrastructure/storage"

	_ "github.com/mattn/go-sqlite3"
)

// Storage хранилище узла edge поверх SQLite
type Storage struct {
	conn
	db *sql.DB
}

func New(ctx context.Context, path string) (*Storage, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_loc=UTC"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Storage{conn: conn{q: db}, db: db}, nil
}

func (s *Storage) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txConn{conn: conn{q: tx}, tx: tx}, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Driver() string {
	return "sqlite"
}

func (s *Storage) Close() error {
	return s.db.Close()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type conn struct {
	q querier
}

func (c conn) QueryRow(ctx context.Context, query string, args ...any) storage.Row {
	return row{c.q.QueryRowContext(ctx, query, args...)}
}

func (c conn) Query(ctx context.Context, query string, args ...any) (storage.Rows, error) {
	r, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows{r}, nil
}

func (c conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c conn) Columns(ctx context.Context, table string) (map[string]bool, error) {
	r, err := c.q.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	defer r.Close()

	cols := make(map[string]bool)
	for r.Next() {
		var name string
		if err := r.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, r.Err()
}

// SyncSequence is a no-op: INTEGER PRIMARY KEY always continues from MAX(id).
func (c conn) SyncSequence(context.Context, string) error {
	return nil
}

type txConn struct {
	conn
	tx *sql.Tx
}

func (t *txConn) Commit(context.Context) error {
	return t.tx.Commit()
}

// Rollback tolerates a transaction already closed by a cancelled context.
func (t *txConn) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

type row struct {
	*sql.Row
}

func (r row) Scan(dest ...any) error {
	err := r.Row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNoRows
	}
	return err
}

type rows struct {
	*sql.Rows
}

func (r rows) Close() {
	_ = r.Rows.Close()
}
