package sync

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) fullSyncOp() huma.Operation {
	return huma.Operation{
		OperationID: "full-sync",
		Method:      http.MethodPost,
		Path:        h.config.FullSyncPath,
		Summary:     "Обмен полными снимками",
		Description: "Принимает снимок узла, сливает его в одной транзакции и возвращает снимок этого узла после слияния",
		Tags:        []string{"sync"},
		Security: []map[string][]string{
			{"apiKey": {}},
		},
		Errors: []int{
			http.StatusUnauthorized, http.StatusConflict, http.StatusRequestEntityTooLarge,
			http.StatusUnprocessableEntity, http.StatusInternalServerError,
		},
		MaxBodyBytes: h.config.MaxBodyBytes,
		Middlewares:  h.middleware,
	}
}

func (h *Handler) getStatusOp() huma.Operation {
	return huma.Operation{
		OperationID: "get-sync-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/status",
		Summary:     "Статус синхронизации",
		Description: "Итог последнего раунда в указанной роли",
		Tags:        []string{"sync"},
		Security: []map[string][]string{
			{"apiKey": {}},
		},
		Middlewares: h.middleware,
	}
}
