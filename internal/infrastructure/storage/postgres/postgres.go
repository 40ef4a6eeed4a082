package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"eventsync/internal/infrastructure/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Storage хранилище узла VM поверх pgxpool
type Storage struct {
	conn
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURI string) (*Storage, error) {
	pool, err := pgxpool.New(ctx, databaseURI)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Storage{conn: conn{q: pool}, pool: pool}, nil
}

func (s *Storage) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &txConn{conn: conn{q: tx}, tx: tx}, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Storage) Driver() string {
	return "postgres"
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type conn struct {
	q querier
}

func (c conn) QueryRow(ctx context.Context, query string, args ...any) storage.Row {
	return row{c.q.QueryRow(ctx, Rebind(query), args...)}
}

func (c conn) Query(ctx context.Context, query string, args ...any) (storage.Rows, error) {
	return c.q.Query(ctx, Rebind(query), args...)
}

func (c conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.q.Exec(ctx, Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c conn) Columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := c.q.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1`, table)
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func (c conn) SyncSequence(ctx context.Context, table string) error {
	ident := pgx.Identifier{table}.Sanitize()
	query := fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence($1, 'id'), COALESCE((SELECT MAX(id) FROM %s), 0) + 1, false)`,
		ident)
	_, err := c.q.Exec(ctx, query, table)
	return err
}

type txConn struct {
	conn
	tx pgx.Tx
}

func (t *txConn) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *txConn) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

type row struct {
	pgx.Row
}

func (r row) Scan(dest ...any) error {
	err := r.Row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNoRows
	}
	return err
}

// Rebind заменяет '?' на позиционные параметры $1, $2, ...
func Rebind(query string) string {
	n := strings.Count(query, "?")
	if n == 0 {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + n*2)
	i := 0
	for _, r := range query {
		if r == '?' {
			i++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(i))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
