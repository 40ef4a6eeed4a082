package sync

import (
	"context"
	"errors"
	"net/http"

	"eventsync/internal/app/server/api/http/httperr"
	"eventsync/internal/config"
	"eventsync/internal/domain/sync"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

// Servicer то, что обработчику нужно от сервиса синхронизации
type Servicer interface {
	sync.Servicer
	Running() bool
}

// Config маршрут и предел тела для обмена снимками
type Config struct {
	FullSyncPath string
	// MaxBodyBytes: 0 берет config.DefaultMaxBodyBytes, -1 снимает ограничение
	MaxBodyBytes int64
}

type Handler struct {
	service    Servicer
	config     Config
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service Servicer, cfg Config, log *slog.Logger, middleware huma.Middlewares) *Handler {
	if cfg.FullSyncPath == "" {
		cfg.FullSyncPath = config.DefaultFullSyncPath
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = config.DefaultMaxBodyBytes
	}

	return &Handler{
		service:    service,
		config:     cfg,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.fullSyncOp(), h.fullSync)
	huma.Register(api, h.getStatusOp(), h.getStatus)
}

func (h *Handler) fullSync(ctx context.Context, input *fullSyncInput) (*fullSyncOutput, error) {
	resp, err := h.service.Receive(ctx, input.Body)
	if err != nil {
		switch {
		case errors.Is(err, sync.ErrInvalidSnapshot):
			return nil, httperr.New(http.StatusUnprocessableEntity, "Invalid snapshot", err)
		case errors.Is(err, sync.ErrSyncInProgress):
			return nil, httperr.New(http.StatusConflict, "Sync already in progress", err)
		default:
			h.log.Error("Full sync failed", slog.String("error", err.Error()))
			return nil, httperr.New(http.StatusInternalServerError, "Sync failed", err)
		}
	}

	return &fullSyncOutput{Body: *resp}, nil
}

func (h *Handler) getStatus(ctx context.Context, input *getStatusInput) (*getStatusOutput, error) {
	out := &getStatusOutput{Body: StatusResponse{Running: h.service.Running()}}

	last, err := h.service.LastSummary(ctx, sync.Role(input.Role))
	switch {
	case errors.Is(err, sync.ErrNotFound):
	case err != nil:
		h.log.Error("Failed to get sync status", slog.String("error", err.Error()))
		return nil, httperr.New(http.StatusInternalServerError, "Failed to get sync status", err)
	default:
		out.Body.Last = last
	}

	return out, nil
}
