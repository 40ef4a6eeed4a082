package client

import (
	"context"
	"errors"
	"fmt"

	"eventsync/internal/app/node"
	"eventsync/internal/config"
	"eventsync/internal/domain/apilog"
	"eventsync/internal/domain/sync"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/exp/slog"
)

// App узел, запускающий раунды синхронизации как инициатор
type App struct {
	config  *config.Config
	log     *slog.Logger
	node    *node.Node
	peer    *HTTPPeer
	service *sync.Service
}

// New открывает хранилище узла. Удаленный узел подключается, только если задан
// SYNC_REMOTE_URL; без него доступны локальные команды (status, logs).
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	n, err := node.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	app := &App{
		config: cfg,
		log:    log,
		node:   n,
	}

	if cfg.Sync.RemoteURL == "" {
		log.Debug("No remote node configured, local commands only")
		app.service = n.SyncService(nil, log, nil)
		return app, nil
	}

	peer, err := NewHTTPPeer(PeerConfig{
		BaseURL:      cfg.Sync.RemoteURL,
		APIKey:       cfg.Sync.APIKey,
		Timeout:      cfg.Sync.Timeout,
		MaxRetries:   cfg.Sync.MaxRetries,
		RetryDelay:   cfg.Sync.RetryDelay,
		FullSyncPath: cfg.Sync.FullSyncPath,
	}, n.APILog, log)
	if err != nil {
		_ = n.Close()
		return nil, fmt.Errorf("init peer: %w", err)
	}

	app.peer = peer
	app.service = n.SyncService(peer, log, nil)
	return app, nil
}

// Sync выполняет один раунд обмена
func (a *App) Sync(ctx context.Context) (*sync.Summary, error) {
	return a.service.Run(ctx)
}

// Watch запускает раунды по расписанию SYNC_INTERVAL до отмены ctx.
// Ошибка раунда не останавливает расписание.
func (a *App) Watch(ctx context.Context, onResult func(*sync.Summary, error)) error {
	if a.peer == nil {
		return sync.ErrNoPeer
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(a.config.Sync.Interval),
		gocron.NewTask(func() {
			summary, err := a.service.Run(ctx)
			if err != nil && !errors.Is(err, sync.ErrSyncInProgress) {
				a.log.Error("Scheduled sync failed", slog.String("error", err.Error()))
			}
			if onResult != nil {
				onResult(summary, err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("schedule sync: %w", err)
	}

	a.log.Info("Watching for sync", slog.Duration("interval", a.config.Sync.Interval))
	scheduler.Start()

	<-ctx.Done()

	return scheduler.Shutdown()
}

// Status возвращает итог последнего раунда в роли инициатора
func (a *App) Status(ctx context.Context) (*sync.Summary, error) {
	return a.service.LastSummary(ctx, sync.RoleInitiator)
}

// Ping проверяет доступность удаленного узла
func (a *App) Ping(ctx context.Context) error {
	if a.peer == nil {
		return sync.ErrNoPeer
	}
	return a.peer.HealthCheck(ctx)
}

// RecentLogs возвращает последние записи журнала обмена
func (a *App) RecentLogs(ctx context.Context, limit int) ([]apilog.Entry, error) {
	return a.node.APILog.Recent(ctx, limit)
}

func (a *App) Close() error {
	return a.node.Close()
}
