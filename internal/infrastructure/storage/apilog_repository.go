package storage

import (
	"context"
	"fmt"

	"eventsync/internal/domain/apilog"

	"golang.org/x/exp/slog"
)

// APILogRepository пишет журнал HTTP-обмена в таблицу api_logs
type APILogRepository struct {
	db  DB
	log *slog.Logger
}

func NewAPILogRepository(db DB, log *slog.Logger) *APILogRepository {
	return &APILogRepository{
		db:  db,
		log: log,
	}
}

func (r *APILogRepository) Save(ctx context.Context, e apilog.Entry) error {
	query := `
		INSERT INTO api_logs
			(direction, service, method, path, status_code, ip, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(ctx, query,
		string(e.Direction), e.Service, e.Method, e.Path, e.StatusCode, e.IP, e.DurationMS, e.Error, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save api log: %w", err)
	}
	return nil
}

func (r *APILogRepository) Recent(ctx context.Context, limit int) ([]apilog.Entry, error) {
	query := `
		SELECT id, direction, service, method, path, status_code, ip, duration_ms, error, created_at
		FROM api_logs
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list api logs: %w", err)
	}
	defer rows.Close()

	entries := make([]apilog.Entry, 0, limit)
	for rows.Next() {
		var (
			e         apilog.Entry
			direction string
		)
		if err := rows.Scan(&e.ID, &direction, &e.Service, &e.Method, &e.Path, &e.StatusCode,
			&e.IP, &e.DurationMS, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan api log: %w", err)
		}
		e.Direction = apilog.Direction(direction)
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
