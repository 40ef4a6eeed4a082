package client

import (
	"context"
	"errors"

	"eventsync/internal/config"

	"golang.org/x/exp/slog"
)

type runtimeKey struct{}

type runtime struct {
	cfg *config.Config
	log *slog.Logger
}

// WithRuntime кладет конфигурацию и логгер в контекст команды
func WithRuntime(ctx context.Context, cfg *config.Config, log *slog.Logger) context.Context {
	return context.WithValue(ctx, runtimeKey{}, runtime{cfg: cfg, log: log})
}

// RuntimeFrom достает конфигурацию и логгер, положенные WithRuntime
func RuntimeFrom(ctx context.Context) (*config.Config, *slog.Logger, error) {
	rt, ok := ctx.Value(runtimeKey{}).(runtime)
	if !ok || rt.cfg == nil {
		return nil, nil, errors.New("application is not initialized")
	}
	return rt.cfg, rt.log, nil
}

// FromContext открывает узел по конфигурации из контекста
func FromContext(ctx context.Context) (*App, error) {
	cfg, log, err := RuntimeFrom(ctx)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, log)
}
