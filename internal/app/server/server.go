package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"eventsync/internal/app/node"
	"eventsync/internal/app/server/api"
	"eventsync/internal/config"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// App отвечающий узел: HTTP API поверх хранилища узла
type App struct {
	cfg  *config.Config
	log  *slog.Logger
	node *node.Node
	http *http.Server
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if cfg.Sync.APIKey == "" {
		return nil, errors.New("SYNC_API_KEY is required to serve sync requests")
	}

	n, err := node.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	service := n.SyncService(nil, log, nil)
	mux := api.New(n, service, cfg.Sync, log)

	return &App{
		cfg:  cfg,
		log:  log,
		node: n,
		http: &http.Server{
			Addr:              cfg.Server.RunAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run обслуживает запросы до отмены ctx, затем останавливает сервер и закрывает хранилище
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("Starting server",
			slog.String("address", a.cfg.Server.RunAddress),
			slog.String("node", a.cfg.Node.Name))
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.log.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return a.http.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if cerr := a.node.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}
