package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eventsync/internal/domain/sync"

	"golang.org/x/exp/slog"
)

// HistoryRepository хранит итоги раундов в таблице sync_sessions
type HistoryRepository struct {
	db  DB
	log *slog.Logger
}

func NewHistoryRepository(db DB, log *slog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: log,
	}
}

func (r *HistoryRepository) SaveSession(ctx context.Context, s sync.Summary) error {
	stats, err := json.Marshal(s.Stats)
	if err != nil {
		return fmt.Errorf("failed to encode session stats: %w", err)
	}

	query := `
		INSERT INTO sync_sessions
			(id, role, state, started_at, finished_at, sent, received, stats, server_time, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(ctx, query,
		s.SessionID, string(s.Role), string(s.State), s.StartedAt.UTC(), s.FinishedAt.UTC(),
		s.Sent, s.Received, string(stats), s.ServerTime, s.Error)
	if err != nil {
		return fmt.Errorf("failed to save sync session: %w", err)
	}
	return nil
}

func (r *HistoryRepository) LastSession(ctx context.Context, role sync.Role) (*sync.Summary, error) {
	query := `
		SELECT id, role, state, started_at, finished_at, sent, received, stats, server_time, error
		FROM sync_sessions
		WHERE role = ?
		ORDER BY started_at DESC
		LIMIT 1
	`

	var (
		s          sync.Summary
		roleStr    string
		state      string
		stats      string
		startedAt  time.Time
		finishedAt time.Time
	)
	err := r.db.QueryRow(ctx, query, string(role)).Scan(
		&s.SessionID, &roleStr, &state, &startedAt, &finishedAt,
		&s.Sent, &s.Received, &stats, &s.ServerTime, &s.Error,
	)
	if errors.Is(err, ErrNoRows) {
		return nil, sync.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync session: %w", err)
	}

	s.Role = sync.Role(roleStr)
	s.State = sync.State(state)
	s.StartedAt = startedAt.UTC()
	s.FinishedAt = finishedAt.UTC()
	if err := json.Unmarshal([]byte(stats), &s.Stats); err != nil {
		r.log.Warn("Failed to decode session stats", "session_id", s.SessionID, "error", err)
	}
	return &s, nil
}
