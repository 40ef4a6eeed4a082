package apilog

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"golang.org/x/exp/slog"
)

const (
	maxErrorLength = 2000
	defaultLimit   = 20
)

type Service struct {
	repo Repository
	log  *slog.Logger
	now  func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With(slog.String("component", "api_log")),
		now:  time.Now,
	}
}

// Record сохраняет запись журнала; ошибка записи только логируется и не влияет на запрос.
func (s *Service) Record(ctx context.Context, e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	e.Error = truncate(e.Error, maxErrorLength)
	if err := s.repo.Save(context.WithoutCancel(ctx), e); err != nil {
		s.log.Warn("Failed to save api log entry",
			slog.String("path", e.Path),
			slog.String("error", err.Error()))
	}
}

func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	entries, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get api log entries: %w", err)
	}
	return entries, nil
}

// truncate обрезает s до n байт, не разрывая многобайтовый символ
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
