// POST /api/v1/sync/full    # Обмен полными снимками (X-API-Key), путь из SYNC_FULL_PATH
// GET  /api/v1/sync/status  # Итог последнего раунда (X-API-Key)
// GET  /api/v1/health       # Проверка узла и хранилища (публичный)

package api

import (
	"eventsync/internal/app/node"
	healthAPI "eventsync/internal/app/server/api/http/health"
	"eventsync/internal/app/server/api/http/middleware"
	"eventsync/internal/app/server/api/http/middleware/auth"
	"eventsync/internal/app/server/api/http/middleware/logger"
	syncAPI "eventsync/internal/app/server/api/http/sync"
	"eventsync/internal/config"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"
)

type Handlers struct {
	Health *healthAPI.Handler
	Sync   *syncAPI.Handler
}

// New создает *chi.Mux с ВСЕМИ операциями через huma.Register
func New(n *node.Node, service syncAPI.Servicer, cfg config.Sync, log *slog.Logger) *chi.Mux {
	mux := chi.NewMux()

	humaConfig := huma.DefaultConfig("Eventsync API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"apiKey": {Type: "apiKey", In: "header", Name: auth.HeaderAPIKey},
	}

	API := humachi.New(mux, humaConfig)

	h := handlers(n, service, cfg, log)
	h.Health.SetupRoutes(API)
	h.Sync.SetupRoutes(API)

	return mux
}

func handlers(n *node.Node, service syncAPI.Servicer, cfg config.Sync, log *slog.Logger) *Handlers {
	authMW := auth.New(cfg.APIKey, log)
	loggerMW := logger.New(log, n.APILog)
	middlewares := middleware.NewContainer(loggerMW.Middleware())

	healthHandler := healthAPI.NewHandler(n.Name, n.DB, log, middlewares.With())
	syncHandler := syncAPI.NewHandler(service, syncAPI.Config{
		FullSyncPath: cfg.FullSyncPath,
		MaxBodyBytes: cfg.MaxBodyBytes,
	}, log, middlewares.With(authMW.Middleware()))

	return &Handlers{
		Health: healthHandler,
		Sync:   syncHandler,
	}
}
