package health

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

// Pinger хранилище узла
type Pinger interface {
	Ping(ctx context.Context) error
	Driver() string
}

type Handler struct {
	node       string
	db         Pinger
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(node string, db Pinger, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		node:       node,
		db:         db,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.healthCheckOp(), h.healthCheck)
}

func (h *Handler) healthCheck(ctx context.Context, _ *Input) (*Output, error) {
	h.log.Debug("health check request received")

	if err := h.db.Ping(ctx); err != nil {
		h.log.Error("Storage ping failed", slog.String("error", err.Error()))
		return nil, huma.Error503ServiceUnavailable("Storage unavailable")
	}

	return &Output{
		Body: Response{
			Status: "OK",
			Node:   h.node,
			Driver: h.db.Driver(),
		},
	}, nil
}
